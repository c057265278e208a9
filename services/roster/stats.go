// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package roster

// Stats is a read-only projection of dataset shape and simple aggregates.
// It is served by the statistics endpoint and never feeds back into query
// interpretation.
type Stats struct {
	TotalRecords    int      `json:"total_records"`
	FilteredRecords int      `json:"filtered_records"`
	Columns         []string `json:"columns"`
	Grades          []string `json:"grades"`
	Classes         []string `json:"classes"`

	// AverageQuizScore and HomeworkSubmittedCount are nil when the
	// corresponding optional column is absent.
	AverageQuizScore       *float64 `json:"average_quiz_score"`
	HomeworkSubmittedCount *int     `json:"homework_submitted_count"`
}

// Summarize computes dataset statistics, optionally narrowed by a role.
//
// Description:
//
//	TotalRecords always reflects the full dataset; FilteredRecords reflects
//	the role-scoped view. Aggregates over optional columns degrade to nil
//	when the column does not exist.
func Summarize(ds *Dataset, role Role) Stats {
	full := ds.View()
	scoped := Scope(full, role)

	stats := Stats{
		TotalRecords:    full.Len(),
		FilteredRecords: scoped.Len(),
		Columns:         ds.Columns(),
		Grades:          DistinctValues(full, ColumnGrade),
		Classes:         DistinctValues(full, ColumnClass),
	}

	if full.HasColumn(ColumnQuizScore) {
		var sum float64
		var n int
		for i := 0; i < full.Len(); i++ {
			if f, ok := Float(full.Row(i), ColumnQuizScore); ok {
				sum += f
				n++
			}
		}
		if n > 0 {
			avg := sum / float64(n)
			stats.AverageQuizScore = &avg
		}
	}

	if full.HasColumn(ColumnHomework) {
		count := 0
		for i := 0; i < full.Len(); i++ {
			if s, ok := Text(full.Row(i), ColumnHomework); ok && s == "Yes" {
				count++
			}
		}
		stats.HomeworkSubmittedCount = &count
	}

	return stats
}
