// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// maxListRows bounds the numbered list handed to the prompt; the store's
// row cap is far larger and exists for a different reason (memory), so the
// two limits are deliberately independent.
const maxListRows = 20

// noResults is the literal the prompt assembler binds when the SQL slot
// has nothing to show.
const noResults = "No results found."

// FormatResult renders an executed result for prompt embedding.
//
// # Description
//
// A single-row single-column result formats as "<AGG> Result: <value>"
// with AGG derived from the column name (COUNT, AVERAGE, SUM, MAX, MIN) or
// dropped entirely when the name carries no aggregate hint. Multi-row
// results become a numbered list bounded to 20 rows with a trailing
// omitted-rows summary. Empty results format as "No results found.".
func FormatResult(res stats.Result) string {
	if res.Empty() {
		return noResults
	}

	if col, val, ok := res.Scalar(); ok {
		if agg := aggLabel(col); agg != "" {
			return fmt.Sprintf("%s Result: %s", agg, formatValue(val))
		}
		return fmt.Sprintf("Result: %s", formatValue(val))
	}

	var b strings.Builder
	shown := res.Rows
	if len(shown) > maxListRows {
		shown = shown[:maxListRows]
	}
	for i, row := range shown {
		fmt.Fprintf(&b, "%d. ", i+1)
		for j, col := range res.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", col, formatValue(row[col]))
		}
		b.WriteString("\n")
	}
	if omitted := len(res.Rows) - len(shown); omitted > 0 {
		fmt.Fprintf(&b, "... and %d more rows\n", omitted)
	}
	return strings.TrimRight(b.String(), "\n")
}

// aggLabel derives the aggregate tag from a result column name.
func aggLabel(col string) string {
	lowered := strings.ToLower(col)
	switch {
	case strings.Contains(lowered, "count"):
		return "COUNT"
	case strings.Contains(lowered, "avg"), strings.Contains(lowered, "average"), strings.Contains(lowered, "mean"):
		return "AVERAGE"
	case strings.Contains(lowered, "sum"), strings.Contains(lowered, "total"):
		return "SUM"
	case strings.Contains(lowered, "max"), strings.Contains(lowered, "highest"):
		return "MAX"
	case strings.Contains(lowered, "min"), strings.Contains(lowered, "lowest"):
		return "MIN"
	default:
		return ""
	}
}

// formatValue renders a driver value without stray precision: integers
// plain, floats with minimal digits, NULL as "NULL".
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
