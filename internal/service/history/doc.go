// Package history lists the recorded setup and sync runs.
//
// The journal keeps one row per run, so the listing answers what was
// installed, when, by whom and whether it worked. The listing is read-only:
// a fresh installation without a journal reports an empty history rather
// than creating one.
package history
