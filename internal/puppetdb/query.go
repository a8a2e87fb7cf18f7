package puppetdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/nodealert/internal/node"
)

type orderField struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// pdbNode is one row of /pdb/query/v4/nodes.
type pdbNode struct {
	Certname           string     `json:"certname"`
	ReportEnvironment  string     `json:"report_environment"`
	CatalogEnvironment string     `json:"catalog_environment"`
	ReportTimestamp    *time.Time `json:"report_timestamp"`
	LatestReportStatus string     `json:"latest_report_status"`
	LatestReportNoop   bool       `json:"latest_report_noop"`
}

// pdbInventory is one row of /pdb/query/v4/inventory.
type pdbInventory struct {
	Certname string         `json:"certname"`
	Facts    map[string]any `json:"facts"`
	Trusted  map[string]any `json:"trusted"`
}

type pdbMetric struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
}

type pdbEvent struct {
	ResourceType  string `json:"resource_type"`
	ResourceTitle string `json:"resource_title"`
	Status        string `json:"status"`
}

// pdbReport is one row of /pdb/query/v4/reports with metrics and
// resource_events expanded.
type pdbReport struct {
	Certname          string    `json:"certname"`
	ProducerTimestamp time.Time `json:"producer_timestamp"`
	Status            string    `json:"status"`
	Noop              bool      `json:"noop"`
	Metrics           struct {
		Data []pdbMetric `json:"data"`
	} `json:"metrics"`
	ResourceEvents struct {
		Data []pdbEvent `json:"data"`
	} `json:"resource_events"`
}

// runStatus maps a PuppetDB report status onto the run status model.
func runStatus(status string, noop bool) node.Status {
	switch status {
	case "failed":
		return node.StatusFailed
	case "changed", "unchanged":
		if noop {
			return node.StatusNoop
		}
		return node.StatusSuccess
	}
	return node.StatusUnknown
}

func (r *pdbReport) report() node.Report {
	out := node.Report{
		Certname:  r.Certname,
		Timestamp: r.ProducerTimestamp.UTC(),
		Status:    runStatus(r.Status, r.Noop),
		Metrics:   make(map[string]float64, len(r.Metrics.Data)),
	}
	for _, m := range r.Metrics.Data {
		out.Metrics[m.Category+"."+m.Name] = m.Value
	}
	for _, ev := range r.ResourceEvents.Data {
		out.ResourceChanges = append(out.ResourceChanges, node.ResourceChange{
			ResourceType: fmt.Sprintf("%s[%s]", ev.ResourceType, ev.ResourceTitle),
			Status:       ev.Status,
		})
	}
	return out
}

// ListNodes returns every active node with its flattened facts.
func (c *Client) ListNodes(ctx context.Context) ([]node.Snapshot, error) {
	var rows []pdbNode
	if err := c.query(ctx, "nodes", nil, []orderField{{Field: "certname", Order: "asc"}}, 0, &rows); err != nil {
		return nil, err
	}
	var inv []pdbInventory
	if err := c.query(ctx, "inventory", nil, nil, 0, &inv); err != nil {
		return nil, err
	}
	facts := make(map[string]map[string]any, len(inv))
	for _, i := range inv {
		f := node.FlattenFacts(i.Facts)
		for k, v := range node.FlattenFacts(i.Trusted) {
			f["trusted."+k] = v
		}
		facts[i.Certname] = f
	}

	out := make([]node.Snapshot, 0, len(rows))
	for _, r := range rows {
		s := node.Snapshot{
			Certname:    r.Certname,
			Environment: r.ReportEnvironment,
			Status:      runStatus(r.LatestReportStatus, r.LatestReportNoop),
			Facts:       facts[r.Certname],
		}
		if s.Environment == "" {
			s.Environment = r.CatalogEnvironment
		}
		if r.ReportTimestamp != nil {
			s.LastReportAt = r.ReportTimestamp.UTC()
		}
		out = append(out, s)
	}
	c.Logger.Debug("puppetdb nodes listed", "nodes", len(out))
	return out, nil
}

// GetNodeReports returns the reports of certname produced within the last
// withinHours hours, newest first. withinHours 0 returns every stored report.
func (c *Client) GetNodeReports(ctx context.Context, certname string, withinHours uint) ([]node.Report, error) {
	var ast any = []any{"=", "certname", certname}
	if withinHours > 0 {
		since := time.Now().UTC().Add(-time.Duration(withinHours) * time.Hour)
		ast = []any{"and", ast, []any{">=", "producer_timestamp", since.Format(time.RFC3339)}}
	}
	var rows []pdbReport
	order := []orderField{{Field: "producer_timestamp", Order: "desc"}}
	if err := c.query(ctx, "reports", ast, order, 0, &rows); err != nil {
		return nil, err
	}
	out := make([]node.Report, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].report())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// GetLatestReport returns the most recent report of certname, or nil when the
// node has none.
func (c *Client) GetLatestReport(ctx context.Context, certname string) (*node.Report, error) {
	ast := []any{"and", []any{"=", "certname", certname}, []any{"=", "latest_report?", true}}
	var rows []pdbReport
	if err := c.query(ctx, "reports", ast, nil, 1, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0].report()
	return &r, nil
}
