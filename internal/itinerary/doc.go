// Package itinerary provides the stop sequence model shared by every other
// package in the module.
//
// An itinerary is partitioned by day. Within a day, stops are ordered by
// OrderIndex. Two invariants hold after every completed mutation:
//
//   - Dense ordering: for a fixed day with n stops, the OrderIndex values are
//     exactly 0..n-1, each once.
//   - Unique placement: an entity is scheduled at most once across the whole
//     itinerary. Re-adding a scheduled entity moves it.
//
// Renumber is the single normalization routine. Every mutating path calls it
// before treating a day as settled.
//
// This package imports nothing internal.
package itinerary
