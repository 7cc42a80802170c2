// Package pkg holds the libraries behind the fractal command.
//
// # Overview
//
// The packages are layered from the pure simulation core outward:
//
//  1. [fractal] - Tree storage, child slots and per-tick propagation
//  2. [palette] - Per-level colours and the spine sequence numbers
//  3. [sim] - Simulation lifecycle, frames and the tick runner
//  4. [sink] - Frame consumers (JSON, binary, cache)
//  5. [record] - SQLite recording of runs and per-level bounds
//  6. [server] - HTTP surface serving the latest frame
//  7. [render/nodelink] - Graphviz diagrams of the tree structure
//
// Supporting packages:
//
//   - [config] - TOML configuration with validation
//   - [cache] - Frame caches (null, file, Redis)
//   - [errors] - Coded errors shared by every layer
//   - [observability] - Hooks for metrics and tracing
//   - [buildinfo] - Version information
//
// # Data Flow
//
//	config.Config
//	     ↓
//	sim.New (fractal.Build + palette)
//	     ↓
//	sim.Runner ── Step ──→ fractal.Propagator
//	     ↓
//	sim.Frame ──→ sink.JSONSink / sink.BinarySink / sink.CacheSink
//	          ──→ record.Recorder
//	          ──→ server.Server
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.Tree.Depth = 5
//	s, err := sim.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	frame, err := s.Step(1.0/60, fractal.IdentityPose())
package pkg
