// Package vm implements the Tails virtual machine.
//
// This package contains:
//   - NaN-boxed value representation
//   - TypeSets and stack effects
//   - The core word registry and vocabulary scopes
//   - Opcode encoding: assembler and disassembler
//   - The threaded-code interpreter
package vm
