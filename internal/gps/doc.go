// Package gps connects to a u-blox receiver and runs the ingest loop.
//
// The serial transport hands out single bytes and reports a quiet line as
// ubx.ErrTimeout. Service decodes almanac and ephemeris frames from any
// ubx.ByteSource, keeps the track table current, runs the cross-validation
// layers and passes every verdict to an alert sink.
package gps
