package dynamodb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable хранит элементы одной партиции и отдает их по убыванию SK.
type fakeTable struct {
	mu     sync.Mutex
	items  []map[string]types.AttributeValue
	inputs []*dynamodb.QueryInput
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)

	sorted := append([]map[string]types.AttributeValue(nil), f.items...)
	sort.Slice(sorted, func(i, j int) bool { return sk(sorted[i]) > sk(sorted[j]) })

	start := 0
	if in.ExclusiveStartKey != nil {
		after := sk(in.ExclusiveStartKey)
		for start < len(sorted) && sk(sorted[start]) >= after {
			start++
		}
	}
	end := start + int(*in.Limit)
	out := &dynamodb.QueryOutput{}
	if end < len(sorted) {
		last := sorted[end-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{attrPK: last[attrPK], attrSK: last[attrSK]}
	} else {
		end = len(sorted)
	}
	out.Items = sorted[start:end]
	return out, nil
}

func sk(item map[string]types.AttributeValue) string {
	return item[attrSK].(*types.AttributeValueMemberS).Value
}

func attempt(id string, ts time.Time, approved bool) entity.DeploymentAttempt {
	a := entity.DeploymentAttempt{
		ID:        id,
		Timestamp: ts,
		Approved:  approved,
		Duration:  1500 * time.Millisecond,
		Result:    &entity.DeploymentValidationResult{Approved: approved, OverallScore: 91.5, CriticalIssues: []string{}},
	}
	if !approved {
		a.BlockedReason = "Functionality score 70.0 is below threshold 95.0"
	}
	return a
}

func TestAttemptRepository_ListRecentNewestFirstWithCursor(t *testing.T) {
	table := &fakeTable{}
	repo := newAttemptRepository(table, Config{TableName: "attempts", StrongReads: true, Retention: 24 * time.Hour})
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.Save(context.Background(), attempt(id, base.Add(time.Duration(i)*time.Minute), i != 1)))
	}

	page, err := repo.ListRecent(context.Background(), port.AttemptQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a3", page.Items[0].ID)
	assert.Equal(t, "a2", page.Items[1].ID)
	assert.False(t, page.Items[1].Approved)
	assert.NotEmpty(t, page.Items[1].BlockedReason)
	require.NotNil(t, page.Items[0].Result)
	assert.Equal(t, 91.5, page.Items[0].Result.OverallScore)
	assert.Equal(t, 1500*time.Millisecond, page.Items[0].Duration)
	require.NotEmpty(t, page.NextCursor)

	next, err := repo.ListRecent(context.Background(), port.AttemptQuery{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "a1", next.Items[0].ID)
	assert.Empty(t, next.NextCursor)

	assert.True(t, *table.inputs[0].ConsistentRead)
	assert.False(t, *table.inputs[0].ScanIndexForward)
	_, hasTTL := table.items[0][attrExpiresAt]
	assert.True(t, hasTTL)
}

func TestAttemptRepository_RejectsEmptyID(t *testing.T) {
	repo := newAttemptRepository(&fakeTable{}, Config{TableName: "attempts"})
	err := repo.Save(context.Background(), entity.DeploymentAttempt{})
	require.Error(t, err)
}

func TestAttemptRepository_InvalidCursor(t *testing.T) {
	repo := newAttemptRepository(&fakeTable{}, Config{TableName: "attempts"})
	_, err := repo.ListRecent(context.Background(), port.AttemptQuery{Cursor: "not-base64!"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid cursor"))
}
