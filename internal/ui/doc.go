// Package ui renders terminal output for the ippower CLI.
//
// Printer produces the one-shot boxes used by status, set and toggle.
// DashboardModel is the Bubble Tea model behind `ippower watch`: a live
// socket table refreshed from engine events, with keys 1-4 (or the cursor
// and enter) to toggle a socket and r to poll immediately.
//
// Logging is expected to stay quiet while the dashboard owns the terminal;
// set IPPOWER_LOG_LEVEL to see engine logs.
package ui
