package bq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/go-logr/logr"
	crmv1 "google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/warehouse"
)

type TableSchema struct {
	Fields []SchemaField
}

type SchemaField struct {
	Name        string
	Type        string
	Mode        string
	Description string
}

// Client is a BigQuery connection scoped to one project and dataset.
type Client struct {
	bq      *bigquery.Client
	project string
	dataset string
	log     logr.Logger
}

var _ warehouse.Connector = (*Client)(nil)

// Open connects with Application Default Credentials.
func Open(ctx context.Context, cfg warehouse.Config, log logr.Logger) (warehouse.Connector, error) {
	cl, err := NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, err
	}
	return newWithClient(cl, cfg.Project, cfg.Dataset, log), nil
}

func newWithClient(cl *bigquery.Client, project, dataset string, log logr.Logger) *Client {
	return &Client{bq: cl, project: project, dataset: dataset, log: log}
}

func (c *Client) Close() error {
	return c.bq.Close()
}

// ListProjects returns the active projects visible to the default
// credentials.
func ListProjects(ctx context.Context) ([]string, error) {
	creds, err := FindDefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := crmv1.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("resource manager: %w", err)
	}
	var projects []string
	req := svc.Projects.List().PageSize(100)
	err = req.Pages(ctx, func(page *crmv1.ListProjectsResponse) error {
		for _, p := range page.Projects {
			if p.LifecycleState == "ACTIVE" {
				projects = append(projects, p.ProjectId)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListProjectDatasets lists the datasets of projectID with a short-lived
// client, for filling the connection form.
func ListProjectDatasets(ctx context.Context, projectID string) ([]string, error) {
	cl, err := NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c := newWithClient(cl, projectID, "", logr.Discard())
	defer c.Close()
	return c.ListDatasets(ctx)
}

func (c *Client) ListDatasets(ctx context.Context) ([]string, error) {
	var datasets []string
	it := c.bq.DatasetsInProject(ctx, c.project)
	for {
		ds, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		datasets = append(datasets, ds.DatasetID)
	}
	return datasets, nil
}

func (c *Client) ListTables(ctx context.Context, datasetID string) ([]string, error) {
	var tables []string
	it := c.bq.DatasetInProject(c.project, datasetID).Tables(ctx)
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		tables = append(tables, t.TableID)
	}
	return tables, nil
}

func (c *Client) GetTableSchema(ctx context.Context, datasetID, tableID string) (*TableSchema, error) {
	md, err := c.bq.DatasetInProject(c.project, datasetID).Table(tableID).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("table metadata: %w", err)
	}
	return convertSchema(md.Schema), nil
}

func convertSchema(s bigquery.Schema) *TableSchema {
	schema := &TableSchema{}
	for _, f := range s {
		schema.Fields = append(schema.Fields, SchemaField{
			Name:        f.Name,
			Type:        string(f.Type),
			Mode:        fieldMode(f),
			Description: f.Description,
		})
	}
	return schema
}

func fieldMode(f *bigquery.FieldSchema) string {
	switch {
	case f.Repeated:
		return "REPEATED"
	case f.Required:
		return "REQUIRED"
	default:
		return "NULLABLE"
	}
}

// Columns returns the top-level field names in order.
func (s *TableSchema) Columns() []string {
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func formatValue(v bigquery.Value) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

// Ping reads the dataset metadata.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.bq.DatasetInProject(c.project, c.dataset).Metadata(ctx); err != nil {
		return fmt.Errorf("dataset %s.%s: %w", c.project, c.dataset, err)
	}
	return nil
}

// Schema lists the tables of the connection's dataset with their
// top-level columns.
func (c *Client) Schema(ctx context.Context) (*placeholder.SchemaIndex, error) {
	names, err := c.ListTables(ctx, c.dataset)
	if err != nil {
		return nil, err
	}
	tables := make([]placeholder.Table, 0, len(names))
	for _, name := range names {
		ts, err := c.GetTableSchema(ctx, c.dataset, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		tables = append(tables, placeholder.Table{Name: name, Columns: ts.Columns()})
	}
	return placeholder.NewSchemaIndex(tables...), nil
}

// Run executes sqlText with the connection's dataset as the default, so
// bare table names resolve.
func (c *Client) Run(ctx context.Context, sqlText string, maxRows int) (*warehouse.Result, error) {
	start := time.Now()
	q := c.bq.Query(sqlText)
	q.DefaultProjectID = c.project
	q.DefaultDatasetID = c.dataset
	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait query: %w", err)
	}
	if status.Err() != nil {
		return nil, fmt.Errorf("query error: %w", status.Err())
	}

	dur := time.Since(start)

	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	result := &warehouse.Result{
		Duration: dur,
	}
	if status.Statistics != nil {
		result.BytesProcessed = status.Statistics.TotalBytesProcessed
	}

	for _, f := range it.Schema {
		result.Columns = append(result.Columns, f.Name)
	}

	for maxRows <= 0 || result.RowCount < int64(maxRows) {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		strRow := make([]string, len(row))
		for i, v := range row {
			strRow[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, strRow)
		result.RowCount++
	}

	c.log.V(1).Info("query finished", "rows", result.RowCount, "bytes", result.BytesProcessed, "duration", dur.String())
	return result, nil
}
