// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package rgraph is a retained-mode GPU command graph.
//
// Client code declares the work of a frame as a set of nodes
// (draw passes, copies, blits, text overlays and presentation)
// and the resources that each node reads and writes. The graph
// computes a valid execution order, rejects cyclic graphs and
// inserts the barriers (and queue ownership transfers, when a
// dedicated transfer queue is used) that make the frame free of
// GPU-side races.
//
// The packages are layered as follows:
//
//	driver     device contract (command buffers, barriers, queues)
//	resource   registry of logical resources and their sync state
//	graph      builder, scheduler and barrier engine
//	engine     frame store, uploads, descriptor allocation
//
// This package only holds the logger shared by all of them.
package rgraph
