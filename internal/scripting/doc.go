// Package scripting runs flow scripts: JavaScript sources whose leading
// comment block declares parameters and outputs, and whose Script function
// returns the output index. Scripts execute in an otto VM with Logger,
// Variables and Flow globals.
package scripting
