// Package analyzer decides what to do with the links of a delivered message.
//
// For every message the Analyzer:
//  1. generates the identifier variants of the recipient address
//  2. records a leak event for every link containing a variant
//  3. selects links to probe now: 1x1 images, matched images, and one
//     random sample of the remaining images
//  4. schedules one delayed probe per selected URL on the probe pool
//  5. hands every other unmatched link to the fetch agent as a link group
//
// Completed probes store their redirect chain and record a leak event for
// every hop URL that contains a variant. Storage failures are logged and
// never abort an analysis.
package analyzer
