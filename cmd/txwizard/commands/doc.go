// Package commands defines the txwizard CLI and wires dependencies for subcommands.
//
// Commands
//
//   - serve   Run the HTTP host for wizard sessions
//   - flows   Print the built-in flows and their steps
//   - demo    Walk a send-asset wizard through submission in process
//
// # Implementation
//
// The root command reads the environment, builds the logger and loads the
// engine configuration (fee schedule, rates, assets) before any subcommand
// runs. Subcommands share that state through package variables.
package commands
