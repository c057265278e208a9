// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package roster

import "log/slog"

// Role describes what slice of the dataset a caller is allowed to see.
//
// Description:
//
//	A nil dimension means no restriction on that dimension; the effective
//	filter is the conjunction of the present dimensions. A role with both
//	dimensions nil is the identity filter.
type Role struct {
	Grade *int    `json:"grade" form:"grade"`
	Class *string `json:"class_name" form:"class_name"`
}

// Empty reports whether the role imposes no restriction at all.
func (r Role) Empty() bool {
	return r.Grade == nil && r.Class == nil
}

// Scope restricts a view to the rows a role is permitted to see.
//
// Description:
//
//	Applies the grade constraint (numeric equality) and the class constraint
//	(exact label equality) for whichever dimensions are present. An empty
//	result is a normal outcome, not an error. The input view is never
//	mutated; scoping twice with the same role equals scoping once.
//
// Thread Safety: This function is safe for concurrent use.
func Scope(v View, role Role) View {
	if v.Len() == 0 || role.Empty() {
		return v
	}

	scoped := v.Select(func(row Row) bool {
		if role.Grade != nil {
			g, ok := Float(row, ColumnGrade)
			if !ok || g != float64(*role.Grade) {
				return false
			}
		}
		if role.Class != nil {
			c, ok := Text(row, ColumnClass)
			if !ok || c != *role.Class {
				return false
			}
		}
		return true
	})

	slog.Debug("Applied role scope",
		slog.Int("before", v.Len()),
		slog.Int("after", scoped.Len()),
	)
	return scoped
}
