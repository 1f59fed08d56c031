// Package textutil cleans operator-supplied names before they become paths
// under the content root.
package textutil
