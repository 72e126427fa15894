// Package pip wraps the Python package-manager command line.
//
// Every operation is tried with a primary invocation and retried once with a
// fallback, so hosts that only expose `python -m pip` still install cleanly.
// The invocation pair defaults per platform and can be overridden in settings.
package pip
