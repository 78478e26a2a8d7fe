// Package main provides the entry point for the leakbox CLI.
//
// leakbox hands out honeypot e-mail addresses, receives the mail sent to
// them and records every place the address shows up: in message links, in
// redirect chains and in requests made by an external fetch agent.
//
// Usage:
//
//	leakbox serve --domain mail.example.org
//	leakbox report --markdown
//
// See --help for all available options.
package main

func main() {
	Execute()
}
