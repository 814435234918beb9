// Package output renders client command results as a table, JSON or YAML.
package output
