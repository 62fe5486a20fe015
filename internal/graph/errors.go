package graph

import "errors"

// Errors for graph and tree operations.
var (
	// ErrMissingEndpoint is returned when an edge lacks a source or destination.
	ErrMissingEndpoint = errors.New("you must specify both source and destination")

	// ErrParentRequired is returned when adding to a non-empty binary tree
	// without a parent and side.
	ErrParentRequired = errors.New("adding in binary trees requires specifying the parent and the side to add to")

	// ErrNodeNotFound is returned when a referenced node does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrSideOccupied is returned when the requested child slot is taken.
	ErrSideOccupied = errors.New("child side already occupied")

	// ErrOrderViolation is returned when a binary search tree child breaks
	// the left < parent < right convention.
	ErrOrderViolation = errors.New("node does not follow convention: left < parent < right")

	// ErrExplicitRoot is returned by CreateRoot on a binary search tree.
	ErrExplicitRoot = errors.New("cannot explicitly create the root of a binary search tree")

	// ErrDetachedNode is returned when linking under a node that belongs to
	// no tree.
	ErrDetachedNode = errors.New("node not allocated to any tree")

	// ErrAlreadyAttached is returned when linking a node that already has a parent.
	ErrAlreadyAttached = errors.New("node already attached to a tree")

	// ErrInvalidMatrix is returned for malformed adjacency input.
	ErrInvalidMatrix = errors.New("invalid adjacency matrix")
)
