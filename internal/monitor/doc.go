// Package monitor implements the full-screen dashboard for one node's live
// CPU, memory and network feed.
//
// The Model follows the Bubble Tea Model-Update-View cycle. It owns at most
// one stream.Session at a time. Session handlers run on the session's own
// goroutines, so they never touch the model; they push frameMsg and stateMsg
// values into a channel that a single outstanding poll command drains back
// into Update.
//
// # Message Flow
//
//  1. connectMsg tears down any open session, bumps the generation and opens
//     a new session for the selected node
//  2. the session's frame handler sends frameMsg{gen, frame}
//  3. Update drops messages whose gen is stale, otherwise loads the frame
//     into a metrics.Store and re-projects it with chart.Project
//  4. View renders from the store and the projected tables
//
// Range changes go to the live session with SetTimeRange; switching node
// always reconnects.
//
// # Layout Modes
//
//	LayoutMinimal  (<80 cols)  - one line per metric with block sparklines
//	LayoutCompact  (80-120)    - stacked sections, one-row braille graphs
//	LayoutStandard (120-160)   - stacked sections, taller graphs when there is room
//	LayoutWide     (160+)      - CPU beside memory and network
package monitor
