// Package coordinator implements the link group hand-off to the external
// fetch agent.
//
// A link group moves through CREATED, ISSUED and CONSUMED. Acquire issues
// one group at random and never issues it again. Submit claims the group
// first, deleting it in the same statement, and only then matches the
// agent's reports against the owner's identifier variants. A group is
// therefore consumed exactly once, even when processing fails part way or
// two submissions race.
package coordinator
