// Package workflow manages the prompt templates used by the tailoring
// agents.
//
// # Embedded Defaults
//
// Default prompts are embedded at compile time from the defaults/ directory,
// one text/template file per agent operation (match, draft_resume,
// draft_cover_letter, evaluate, polish, fact_check, detect_ai, humanize,
// propose_changes).
//
// # Runtime Customization
//
// Users can customize prompts by creating files with the same names in
// .tailor/workflows/. A missing file falls back to the embedded default.
//
// Run 'tailor init -r' to reset workflows to the embedded defaults.
package workflow
