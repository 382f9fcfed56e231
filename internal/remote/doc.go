// Package remote drives a speech-understanding service through its
// upload, processing-poll and generate capabilities.
//
// A Backend adapter performs single attempts against one provider. Transport
// and Invoker add the retry policy, the ready-poll loop and the per-attempt
// generation deadline on top of any Backend, so the orchestration logic is
// written once for every provider.
package remote
