package service

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSink is a mock implementation of CorpusSink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) WriteFile(ctx context.Context, rel string, data []byte) error {
	args := m.Called(ctx, rel, data)
	return args.Error(0)
}

const medicalPolicyText = "KFG Medical Allowance Policy\nEffective 01/07/2023 the medical allowance is Tk. 40,000"

func newTestOrganizer(sink CorpusSink) *DocumentOrganizer {
	return NewDocumentOrganizer(NewTextNormalizer(nil), NewMetadataExtractor(NewCategorizer(nil)), sink)
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestDocumentOrganizer_OrganizeDir(t *testing.T) {
	src := writeCorpus(t, map[string]string{
		"Medical Allowance Policy.txt": medicalPolicyText,
		"Leave Notice (2022).txt":      "Annual leave notice for all staff members of KFG",
		"empty.txt":                    "   \n",
		"scan.pdf":                     "%PDF",
	})
	require.NoError(t, os.Mkdir(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(src, "missing-target"), filepath.Join(src, "dangling.txt")))

	out := t.TempDir()
	organizer := newTestOrganizer(storage.NewFSSink(out))

	result, err := organizer.OrganizeDir(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 4)
	statuses := map[string]domain.FileStatus{}
	for _, o := range result.Outcomes {
		statuses[o.Filename] = o.Status
	}
	assert.Equal(t, map[string]domain.FileStatus{
		"Leave Notice (2022).txt":      domain.FileStatusSuccess,
		"Medical Allowance Policy.txt": domain.FileStatusSuccess,
		"dangling.txt":                 domain.FileStatusFailed,
		"empty.txt":                    domain.FileStatusSkipped,
	}, statuses)
	assert.Len(t, result.Succeeded(), 2)

	idx := result.Index
	assert.Equal(t, 2, idx.TotalDocuments)
	assert.Equal(t, 1, idx.ErrorCount)
	assert.Equal(t, 1, idx.SkippedCount)
	assert.Equal(t, []string{"Medical_Allowance_Policy_organized.txt"}, idx.Categories["allowance"])
	assert.Equal(t, []string{"Leave_Notice_2022_organized.txt"}, idx.Categories["leave"])
	assert.Equal(t, 1, idx.TypeCounts["Policy"])
	assert.Equal(t, 1, idx.TypeCounts["Notice"])

	organized := filepath.Join(out, "organized", "Medical_Allowance_Policy_organized.txt")
	body, err := os.ReadFile(organized)
	require.NoError(t, err)
	assert.Equal(t, NewTextNormalizer(nil).Normalize(medicalPolicyText), string(body))

	for _, p := range []string{
		"organized/by_category/allowance/Medical_Allowance_Policy_organized.txt",
		"organized/by_type/Policy/Medical_Allowance_Policy_organized.txt",
		"organized/by_category/leave/Leave_Notice_2022_organized.txt",
		"organized/by_type/Notice/Leave_Notice_2022_organized.txt",
	} {
		copyBody, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(p)))
		require.NoError(t, err, p)
		assert.NotEmpty(t, copyBody)
	}

	metaBytes, err := os.ReadFile(filepath.Join(out, "metadata", "Medical_Allowance_Policy_metadata.json"))
	require.NoError(t, err)
	var meta domain.DocumentMetadata
	require.NoError(t, json.Unmarshal(metaBytes, &meta))
	assert.Equal(t, "Medical_Allowance_Policy_organized.txt", meta.Filename)
	assert.Equal(t, "Medical Allowance Policy.txt", meta.OriginalFilename)
	assert.Equal(t, "allowance", meta.Category)
	assert.Equal(t, domain.DocumentTypePolicy, meta.DocumentType)
	assert.Equal(t, "2023-07-01", meta.Date)
	assert.Equal(t, int64(len(medicalPolicyText)), meta.FileSize)
	assert.Equal(t, []string{"KFG"}, meta.Entities.Organizations)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(metaBytes, &raw))
	for _, key := range []string{"filename", "original_filename", "category", "document_type", "date",
		"policy_name", "file_size", "word_count", "char_count", "entities", "processing_date", "version", "status"} {
		assert.Contains(t, raw, key)
	}

	indexBytes, err := os.ReadFile(filepath.Join(out, "document_index.json"))
	require.NoError(t, err)
	var stored domain.DocumentIndex
	require.NoError(t, json.Unmarshal(indexBytes, &stored))
	assert.Equal(t, 2, stored.TotalDocuments)
	assert.Len(t, stored.Documents, 2)
	assert.Equal(t, idx.BatchID, stored.BatchID)
}

func TestDocumentOrganizer_EmptyCorpus(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "kfg")

	result, err := newTestOrganizer(storage.NewFSSink(out)).OrganizeDir(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Index.TotalDocuments)
	assert.Equal(t, 0, result.Index.ErrorCount)
	assert.Empty(t, result.Outcomes)

	for _, dir := range []string{"organized", "organized/by_category", "organized/by_type", "metadata"} {
		info, err := os.Stat(filepath.Join(out, filepath.FromSlash(dir)))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	_, err = os.Stat(filepath.Join(out, "document_index.json"))
	assert.NoError(t, err)
}

func TestDocumentOrganizer_Idempotent(t *testing.T) {
	src := writeCorpus(t, map[string]string{
		"Medical Allowance Policy.txt": medicalPolicyText,
		"Bonus Circular.txt":           "Festival bonus circular for production workers",
	})
	out := t.TempDir()
	organizer := newTestOrganizer(storage.NewFSSink(out))

	first, err := organizer.OrganizeDir(context.Background(), src)
	require.NoError(t, err)
	treeAfterFirst := listTree(t, out)

	second, err := organizer.OrganizeDir(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, treeAfterFirst, listTree(t, out))
	assert.Equal(t, first.Index.Categories, second.Index.Categories)
	assert.Equal(t, first.Index.Types, second.Index.Types)
	assert.NotEqual(t, first.Index.BatchID, second.Index.BatchID)
}

func TestDocumentOrganizer_MissingDirectory(t *testing.T) {
	_, err := newTestOrganizer(storage.NewFSSink(t.TempDir())).OrganizeDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, domain.ErrFileUnreadable))
}

func TestDocumentOrganizer_SinkFailureIsPerFile(t *testing.T) {
	src := writeCorpus(t, map[string]string{
		"a.txt": "Salary structure for officers",
		"b.txt": "Leave rules for officers",
	})

	sink := new(MockSink)
	sink.On("WriteFile", mock.Anything, "organized/a_organized.txt", mock.Anything).Return(errors.New("disk full"))
	sink.On("WriteFile", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := newTestOrganizer(sink).OrganizeDir(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, domain.FileStatusFailed, result.Outcomes[0].Status)
	assert.Contains(t, result.Outcomes[0].Error, "disk full")
	assert.Equal(t, domain.FileStatusSuccess, result.Outcomes[1].Status)
	assert.Equal(t, 1, result.Index.TotalDocuments)
	assert.Equal(t, 1, result.Index.ErrorCount)
	sink.AssertCalled(t, "WriteFile", mock.Anything, "document_index.json", mock.Anything)
}

func TestDocumentOrganizer_IndexWriteFailure(t *testing.T) {
	sink := new(MockSink)
	sink.On("WriteFile", mock.Anything, "document_index.json", mock.Anything).Return(errors.New("read-only"))

	_, err := newTestOrganizer(sink).OrganizeDir(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, domain.ErrWriteLayout))
}

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Medical Allowance Policy.txt", "Medical_Allowance_Policy"},
		{"Leave Notice (2022).txt", "Leave_Notice_2022"},
		{"TA/DA  rules.txt", "TADA_rules"},
		{"  spaced  .txt", "spaced"},
		{"ছুটি নীতি.txt", "ছুটি_নীতি"},
		{"v1.2-final.txt", "v1.2-final"},
		{"@@@.txt", "document"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanFilename(tt.in))
		})
	}
}

func TestDocumentOrganizer_CollidingNames(t *testing.T) {
	src := writeCorpus(t, map[string]string{
		"Leave Policy.txt": "Annual leave policy for head office staff",
		"Leave_Policy.txt": "Replacement leave policy for factory workers",
	})
	out := t.TempDir()

	result, err := newTestOrganizer(storage.NewFSSink(out)).OrganizeDir(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "Leave Policy.txt", result.Outcomes[0].Filename)
	assert.Equal(t, domain.FileStatusSuccess, result.Outcomes[0].Status)
	assert.Equal(t, "Leave_Policy.txt", result.Outcomes[1].Filename)
	assert.Equal(t, domain.FileStatusFailed, result.Outcomes[1].Status)
	assert.Contains(t, result.Outcomes[1].Error, "Leave Policy.txt")

	idx := result.Index
	assert.Equal(t, 1, idx.TotalDocuments)
	assert.Equal(t, 1, idx.ErrorCount)
	assert.Equal(t, []string{"Leave_Policy_organized.txt"}, idx.Categories["leave"])

	body, err := os.ReadFile(filepath.Join(out, "organized", "Leave_Policy_organized.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "head office")

	metaBytes, err := os.ReadFile(filepath.Join(out, "metadata", "Leave_Policy_metadata.json"))
	require.NoError(t, err)
	var meta domain.DocumentMetadata
	require.NoError(t, json.Unmarshal(metaBytes, &meta))
	assert.Equal(t, "Leave Policy.txt", meta.OriginalFilename)
}

func TestDocumentOrganizer_CollisionAfterSkippedFile(t *testing.T) {
	src := writeCorpus(t, map[string]string{
		"Leave Policy.txt": "  \n",
		"Leave_Policy.txt": "Replacement leave policy for factory workers",
	})

	result, err := newTestOrganizer(storage.NewFSSink(t.TempDir())).OrganizeDir(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, domain.FileStatusSkipped, result.Outcomes[0].Status)
	assert.Equal(t, domain.FileStatusSuccess, result.Outcomes[1].Status)
}
