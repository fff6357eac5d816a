// Package storage is the persistence collaborator: a row-oriented store
// backed by Azure Table Storage with per-user partitions, a Redis-backed
// read cache, a Redis pub/sub change feed, and an Azure Queue holding
// pending reminders.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: row not found")

// ErrConflict is returned when an insert collides with an existing row.
var ErrConflict = errors.New("storage: row already exists")

// Tables names the five tables the core operates on.
type Tables struct {
	Tasks        string
	Dependencies string
	Categories   string
	Profiles     string
	Integrations string
}

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	taskTable        *aztables.Client
	depTable         *aztables.Client
	categoryTable    *aztables.Client
	profileTable     *aztables.Client
	integrationTable *aztables.Client
	reminderQueue    *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, reminderQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	rq, err := azqueue.NewQueueClientFromConnectionString(connStr, reminderQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:        svc.NewClient(tables.Tasks),
		depTable:         svc.NewClient(tables.Dependencies),
		categoryTable:    svc.NewClient(tables.Categories),
		profileTable:     svc.NewClient(tables.Profiles),
		integrationTable: svc.NewClient(tables.Integrations),
		reminderQueue:    rq,
	}, nil
}

// mapError translates service responses into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return ErrNotFound
		case 409:
			return ErrConflict
		}
	}
	return err
}

func listByPartition(ctx context.Context, client *aztables.Client, userID string) ([][]byte, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := [][]byte{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		rows = append(rows, resp.Entities...)
	}
	return rows, nil
}
