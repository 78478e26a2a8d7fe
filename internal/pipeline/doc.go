// Package pipeline runs delivered messages through a fixed sequence of
// ingest steps: archive, record, extract and analyze.
//
// Each step receives the Delivery built from the SMTP envelope and may fill
// in fields for later steps. Steps wrapped with Optional are best-effort:
// their failures are recorded on the Delivery and the pipeline moves on.
// Any other failure stops processing of that message only.
package pipeline
