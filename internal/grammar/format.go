package grammar

import (
	"fmt"
	"strconv"
	"strings"

	"keepaway/internal/agent"
)

// Format renders troop in the canonical layout accepted by Parse. Queues are
// written as they currently stand.
func Format(troop agent.Troop) string {
	var b strings.Builder
	for i := range troop {
		a := &troop[i]
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s%d:\n", declPrefix, a.ID)

		items := a.Items.Values()
		parts := make([]string, len(items))
		for j, v := range items {
			parts[j] = strconv.FormatUint(v, 10)
		}
		b.WriteString("  " + itemsPrefix)
		if len(parts) > 0 {
			b.WriteString(" " + strings.Join(parts, ", "))
		}
		b.WriteByte('\n')

		fmt.Fprintf(&b, "  %s %s\n", operationPrefix, a.Operation)
		fmt.Fprintf(&b, "  %s%d\n", testPrefix, a.Divisor)
		fmt.Fprintf(&b, "    %s%d\n", ifTruePrefix, a.IfTrue)
		fmt.Fprintf(&b, "    %s%d\n", ifFalsePrefix, a.IfFalse)
	}
	return b.String()
}
