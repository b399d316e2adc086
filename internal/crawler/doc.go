// Package crawler defines the core types and contracts shared across the
// crawl subsystems: the film record model, the job lifecycle, the error
// taxonomy, and the interfaces implemented by the fetch strategies and
// stores.
package crawler
