// Package testsupport builds throwaway configs, stores, and fixtures for tests.
package testsupport
