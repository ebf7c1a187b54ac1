// Package telemetry defines the records exchanged between the bioreactor
// telemetry producers (the OPC subscription client), the commit layer, and
// the readers that plot or export committed rows.
//
// A Measurement always describes exactly one physical channel. Devices with
// several channels (dual-channel dissolved oxygen probes, multi-band imaging
// sensors) deliver each channel as its own Measurement, and each one becomes
// its own row.
//
// Timestamps carry millisecond precision. They are truncated on the way in
// and stored as Unix milliseconds so that ordering and equality are exact.
package telemetry
