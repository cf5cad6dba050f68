package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"studyboard/domain"
)

const (
	edmInt64 = "Edm.Int64"
	// maxBatch is the entity limit of a single table transaction.
	maxBatch = 100
)

// Tables stores tasks in Azure Table Storage. Each owner is one partition so that a
// column compaction can be committed as a single entity group transaction.
type Tables struct {
	client *aztables.Client
}

// NewTables connects to the tasks table using an account connection string.
func NewTables(connStr, table string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{client: svc.NewClient(table)}, nil
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ETag         string `json:"odata.etag,omitempty"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Status       string `json:"Status"`
	Priority     string `json:"Priority"`
	DueDate      string `json:"DueDate"`
	Order        int64  `json:"Order,string"`
	OrderType    string `json:"Order@odata.type"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func toEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		PartitionKey: t.OwnerID,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		Order:        t.Order,
		OrderType:    edmInt64,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return ent
}

func (e taskEntity) task() (domain.Task, error) {
	t := domain.Task{
		ID:          e.RowKey,
		OwnerID:     e.PartitionKey,
		Title:       e.Title,
		Description: e.Description,
		Status:      domain.Status(e.Status),
		Priority:    domain.Priority(e.Priority),
		Order:       e.Order,
		Version:     e.ETag,
	}
	var err error
	if t.CreatedAt, err = parseTime(e.CreatedAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(e.UpdatedAt); err != nil {
		return t, err
	}
	if e.DueDate != "" {
		due, err := parseTime(e.DueDate)
		if err != nil {
			return t, err
		}
		t.DueDate = &due
	}
	return t, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func decodeEntity(data []byte, etag azcore.ETag) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	if etag != "" {
		ent.ETag = string(etag)
	}
	return ent.task()
}

func encodeEntity(t domain.Task) ([]byte, error) {
	return sonic.Marshal(toEntity(t))
}

// quote escapes a value for an OData filter literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (s *Tables) list(ctx context.Context, filter string) ([]domain.Task, error) {
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, e := range resp.Entities {
			t, err := decodeEntity(e, "")
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (s *Tables) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return s.list(ctx, "PartitionKey eq "+quote(ownerID))
}

func (s *Tables) ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	return s.list(ctx, "PartitionKey eq "+quote(ownerID)+" and Status eq "+quote(string(status)))
}

func (s *Tables) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	resp, err := s.client.GetEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeEntity(resp.Value, resp.ETag)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Tables) InsertTask(ctx context.Context, task domain.Task) error {
	payload, err := encodeEntity(task)
	if err != nil {
		return err
	}
	_, err = s.client.AddEntity(ctx, payload, nil)
	return mapTableError(err)
}

func (s *Tables) UpdateTask(ctx context.Context, task domain.Task) error {
	payload, err := encodeEntity(task)
	if err != nil {
		return err
	}
	et := ifMatch(task)
	_, err = s.client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapTableError(err)
}

func (s *Tables) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	et := azcore.ETagAny
	_, err := s.client.DeleteEntity(ctx, ownerID, taskID, &aztables.DeleteEntityOptions{IfMatch: &et})
	return mapTableError(err)
}

// ApplyMove writes the move as one entity group transaction. Columns with more than
// maxBatch-1 renumbered siblings are split into several transactions; the moved task
// always goes in the last one.
func (s *Tables) ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error {
	writes := make([]domain.Task, 0, len(renumbered)+1)
	writes = append(writes, renumbered...)
	writes = append(writes, moved)
	actions := make([]aztables.TransactionAction, 0, len(writes))
	for _, t := range writes {
		payload, err := encodeEntity(t)
		if err != nil {
			return err
		}
		et := ifMatch(t)
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateReplace,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	for start := 0; start < len(actions); start += maxBatch {
		end := start + maxBatch
		if end > len(actions) {
			end = len(actions)
		}
		if _, err := s.client.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return mapTableError(err)
		}
	}
	return nil
}

func ifMatch(t domain.Task) azcore.ETag {
	if t.Version == "" {
		return azcore.ETagAny
	}
	return azcore.ETag(t.Version)
}

// mapTableError translates table service status codes into domain errors.
func mapTableError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, respErr.ErrorCode)
		case http.StatusConflict, http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", domain.ErrConflict, respErr.ErrorCode)
		}
	}
	return err
}
