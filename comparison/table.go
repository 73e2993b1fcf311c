package comparison

import (
	"fmt"
	"io"
	"strconv"

	"pricecompare/models"

	"github.com/olekukonko/tablewriter"
)

// itemNameWidth is the column width item names wrap at
const itemNameWidth = 50

// RenderTable writes the comparison as a text table. The query is printed
// in the first column of the first row only.
func RenderTable(w io.Writer, result *models.ComparisonResult) error {
	if result == nil {
		return fmt.Errorf("nil comparison result")
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"Item"}, models.ComparisonHeaders...))
	table.SetAutoWrapText(true)
	table.SetColWidth(itemNameWidth)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	if len(result.Rows) == 0 {
		table.Append([]string{result.Query, "", "", "", result.Message, "", ""})
		table.Render()
		return nil
	}

	for i, row := range result.Rows {
		item := ""
		if i == 0 {
			item = result.Query
		}
		table.Append([]string{
			item,
			row.Store,
			row.Brand,
			row.Packing,
			row.ItemName,
			row.Price,
			strconv.FormatFloat(row.Relevance, 'f', -1, 64),
		})
	}
	table.Render()
	return nil
}
