// Package slot_tools provides the MCP tools that propose meeting slots.
//
//   - find_available_slots: searches the primary calendar of a session
//   - compute_slots: runs the slot finder over busy intervals passed in
//
// Both return JSON in the shape of the find-slots HTTP endpoint.
package slot_tools
