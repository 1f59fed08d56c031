// Package testsupport provides fixtures shared by package tests: temp-dir
// configs, a migrated database, seeded rows and a recording transcoder.
package testsupport
