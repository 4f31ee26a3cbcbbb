// Package sim provides a simulation source that replays scripted or
// pseudo-random market-data events through the dispatcher, for testing
// consumers without a live feed connection.
//
// Events travel the same path as live ones, so consumers, queues and
// overflow policies behave identically under simulation.
package sim
