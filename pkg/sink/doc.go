// Package sink provides [sim.Sink] implementations that serialize frames.
//
//   - [JSONSink] writes one JSON document per frame (JSON lines)
//   - [BinarySink] writes packed little-endian float32 matrices with a 48-byte
//     stride, the layout a GPU compute buffer of 3×4 matrices expects
//   - [CacheSink] stores encoded frames in a [cache.Cache] so other processes
//     can read the latest transforms
//   - [Multi] fans a frame out to several sinks
//   - [Discard] drops frames
package sink
