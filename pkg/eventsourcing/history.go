package eventsourcing

import "time"

// CommandHistoryCriteria filters and paginates a command_history query.
// The zero value matches every command, offset 0, no row limit.
type CommandHistoryCriteria struct {
	Offset  int
	Rows    int // 0 means unlimited
	After   *time.Time
	Before  *time.Time
	Include []string // only these labels, when non-empty
	Exclude []string // never these labels
}

// SetOffset sets the pagination offset.
func (c *CommandHistoryCriteria) SetOffset(offset int) { c.Offset = offset }

// SetRows sets the maximum number of rows to return.
func (c *CommandHistoryCriteria) SetRows(rows int) { c.Rows = rows }

// SetInclude restricts the result to commands with one of these labels.
func (c *CommandHistoryCriteria) SetInclude(labels []string) { c.Include = labels }

// SetExclude drops commands with one of these labels from the result.
func (c *CommandHistoryCriteria) SetExclude(labels []string) { c.Exclude = labels }

func (c CommandHistoryCriteria) matches(cmd StoredCommand) bool {
	if c.After != nil && cmd.Time.Before(*c.After) {
		return false
	}
	if c.Before != nil && cmd.Time.After(*c.Before) {
		return false
	}
	if len(c.Include) > 0 && !containsLabel(c.Include, cmd.Label) {
		return false
	}
	if len(c.Exclude) > 0 && containsLabel(c.Exclude, cmd.Label) {
		return false
	}
	return true
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// CommandHistoryRecord is one row of a command history query result: a
// StoredCommand plus nothing else, kept as a distinct type so future
// display-only fields (e.g. resolved actor names) don't have to live on
// StoredCommand itself.
type CommandHistoryRecord struct {
	StoredCommand
}

// CommandHistory is a page of command history for one aggregate.
type CommandHistory struct {
	total    int
	offset   int
	commands []CommandHistoryRecord
}

// Total is the number of commands matching the criteria, before
// pagination.
func (h CommandHistory) Total() int { return h.total }

// Offset is the pagination offset this page started at.
func (h CommandHistory) Offset() int { return h.offset }

// Commands returns the page of matching commands, oldest first.
func (h CommandHistory) Commands() []CommandHistoryRecord { return h.commands }

// buildHistory applies crit to the ascending, already-loaded commands
// of one aggregate.
func buildHistory(commands []StoredCommand, crit CommandHistoryCriteria) CommandHistory {
	var matched []StoredCommand
	for _, cmd := range commands {
		if crit.matches(cmd) {
			matched = append(matched, cmd)
		}
	}

	total := len(matched)
	offset := crit.Offset
	if offset > total {
		offset = total
	}
	end := total
	if crit.Rows > 0 && offset+crit.Rows < end {
		end = offset + crit.Rows
	}

	page := matched[offset:end]
	records := make([]CommandHistoryRecord, len(page))
	for i, cmd := range page {
		records[i] = CommandHistoryRecord{cmd}
	}

	return CommandHistory{total: total, offset: offset, commands: records}
}
