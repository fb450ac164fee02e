package airtable

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/igualparatodos/multiwoven/internal/connector/http"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// ScanRecords pages through a table following the offset token. Only the
// requested fields are returned.
func (a *Airtable) ScanRecords(ctx context.Context, table string, q lookup.Query, visit func(rows []lookup.Row) error) error {
	query := url.Values{}
	for _, f := range q.Fields {
		query.Add("fields[]", f)
	}
	if q.Filter != "" {
		query.Set("filterByFormula", q.Filter)
	}

	pager := http.NewOffsetTokenPaginator(a.tablePath(table), query, a.config.PageSize)
	req := pager.FirstPage()
	for req != nil {
		resp, err := a.Client.Do(ctx, req)
		if err != nil {
			return fmt.Errorf("list %s page %d: %w", table, pager.Pages(), err)
		}

		var page recordsResponse
		if err := resp.JSON(&page); err != nil {
			return fmt.Errorf("decode %s page %d: %w", table, pager.Pages(), err)
		}
		rows := make([]lookup.Row, 0, len(page.Records))
		for _, rec := range page.Records {
			rows = append(rows, lookup.Row{ID: rec.ID, Fields: rec.Fields})
		}
		if err := visit(rows); err != nil {
			return err
		}

		req, err = pager.NextPage(ctx, resp)
		if err != nil {
			return err
		}
	}
	return nil
}

// EqualityFilter builds a filterByFormula expression matching field = value.
func (a *Airtable) EqualityFilter(field string, value any) string {
	return fmt.Sprintf("{%s}=%s", escapeFieldName(field), formulaLiteral(value))
}

func escapeFieldName(field string) string {
	return strings.ReplaceAll(field, "}", `\}`)
}

func formulaLiteral(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "TRUE()"
		}
		return "FALSE()"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	key, _ := lookup.KeyOf(value)
	escaped := strings.ReplaceAll(key, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}
