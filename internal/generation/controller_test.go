package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/cv-tailor/internal/fetch"
	"github.com/jonathan/cv-tailor/internal/llm"
	"github.com/jonathan/cv-tailor/internal/tenancy"
	"github.com/jonathan/cv-tailor/internal/types"
)

type memStore struct {
	mu      sync.Mutex
	docs    map[string]*types.CvDocument
	loads   int
	saves   int
	saveErr error
}

func newMemStore(docs ...*types.CvDocument) *memStore {
	s := &memStore{docs: map[string]*types.CvDocument{}}
	for _, d := range docs {
		s.docs[d.ID] = d.Clone()
	}
	return s
}

func (s *memStore) LoadDocument(_ context.Context, _ string, id string) (*types.CvDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.docs[id].Clone(), nil
}

func (s *memStore) SaveDocument(_ context.Context, _ string, doc *types.CvDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.docs[doc.ID] = doc.Clone()
	return nil
}

type fakeResolver struct {
	cfg   llm.ProviderConfig
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context, string) (llm.ProviderConfig, tenancy.Source, error) {
	r.calls++
	return r.cfg, tenancy.SourceUser, r.err
}

type fakeFetcher struct {
	text string
	err  error
}

func (f fakeFetcher) FetchText(context.Context, string) (string, error) {
	return f.text, f.err
}

func sampleDoc() *types.CvDocument {
	return &types.CvDocument{
		ID:      "doc-1",
		Profile: types.Profile{FirstName: "Ada", Headline: "Engineer"},
		WorkExperience: []types.WorkExperience{{
			EntityID:    "w1",
			Position:    "Engineer",
			CompanyName: "Acme",
			StartDate:   "2020-01",
			Description: "Built things",
		}},
		Skills:    []types.Skill{{EntityID: "s1", Name: "Go"}},
		Interests: []types.Interest{{EntityID: "in1", Name: "Chess"}},
	}
}

func request(sections ...types.SectionID) types.GenerationRequest {
	return types.GenerationRequest{
		DocumentRef:    "doc-1",
		TargetSections: sections,
		ContextText:    "Senior Go engineer building payment systems",
	}
}

// openAIServer answers every chat completion with content and counts hits.
func openAIServer(t *testing.T, status int, content string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(content))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func openAIConfig(endpoint string) llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:     llm.ProviderOpenAI,
		Credential:   llm.PlainCredential("sk-test"),
		Model:        "gpt-test",
		BaseEndpoint: endpoint,
		ContextClass: types.ContextFull,
	}
}

func newTestController(store *memStore, resolver ConfigResolver, server *httptest.Server, opts ...Option) *Controller {
	if server != nil {
		opts = append(opts, WithBackendOptions(llm.WithHTTPClient(server.Client())))
	}
	return NewController(store, resolver, opts...)
}

func TestGenerate_ServerSideMergesAndSavesOnce(t *testing.T) {
	server, hits := openAIServer(t, http.StatusOK, "```json\n{\"workExperience\":[{\"entityId\":\"w1\",\"description\":\"Built payment systems in Go\"}]}\n```")
	store := newMemStore(sampleDoc())
	c := newTestController(store, &fakeResolver{cfg: openAIConfig(server.URL)}, server)

	result, err := c.Generate(context.Background(), "user-1", request(types.SectionWorkExperience))
	require.NoError(t, err)

	require.Equal(t, types.StatusSuccess, result.Status, result.ErrorMessage)
	assert.Empty(t, result.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 1, store.loads)

	want := sampleDoc()
	want.WorkExperience[0].Description = "Built payment systems in Go"
	if diff := cmp.Diff(want, result.Document); diff != "" {
		t.Errorf("merged document mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, store.docs["doc-1"]); diff != "" {
		t.Errorf("saved document mismatch (-want +got):\n%s", diff)
	}
	assert.JSONEq(t, `{"workExperience":[{"entityId":"w1","description":"Built payment systems in Go"}]}`, string(result.Payload))
	require.Len(t, result.Merge.Matched, 1)
	assert.Equal(t, types.MatchEntityID, result.Merge.Matched[0].Strategy)
}

func TestGenerate_DeferredThenSecondRoundTrip(t *testing.T) {
	server, hits := openAIServer(t, http.StatusOK, "{}")
	store := newMemStore(sampleDoc())
	resolver := &fakeResolver{cfg: llm.ProviderConfig{Provider: llm.ProviderLocalDevice, Model: "phi-3-mini"}}
	c := newTestController(store, resolver, server)

	req := request(types.SectionSkills)
	req.Image = &types.ImageAttachment{MIMEType: "image/png", Data: []byte{1, 2, 3}}

	first, err := c.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.Equal(t, types.StatusDeferred, first.Status)
	require.NotNil(t, first.Deferred)
	assert.True(t, first.Deferred.Deferred)
	assert.Equal(t, "phi-3-mini", first.Deferred.ModelID)
	assert.Equal(t, types.ContextConstrained, first.Deferred.ModelClass)
	assert.Equal(t, ConstrainedMaxTokens, first.Deferred.MaxTokens)
	assert.Contains(t, first.Deferred.Prompt, "[entityId: s1] Go")
	assert.Contains(t, first.Deferred.Prompt, llm.ImageOmittedNote)
	assert.Nil(t, first.Document)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits), "deferred run must not touch the network")
	assert.Equal(t, 0, store.saves)

	req.Image = nil
	req.ContextText = ""
	req.ExecutionResultText = `Here you go: {"skills":[{"entityId":"s1","level":"expert"},{"name":"Kubernetes"}]}`
	second, err := c.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, second.Status, second.ErrorMessage)

	assert.Equal(t, 1, resolver.calls, "second round trip skips resolution")
	assert.Equal(t, int32(0), atomic.LoadInt32(hits), "second round trip skips dispatch")
	assert.Equal(t, 1, store.saves)
	require.Len(t, second.Document.Skills, 2)
	assert.Equal(t, "expert", second.Document.Skills[0].Level)
	assert.Equal(t, "Kubernetes", second.Document.Skills[1].Name)
	assert.NotEmpty(t, second.Document.Skills[1].EntityID)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		content  string
		sections []types.SectionID
		wantKind types.ErrorKind
		wantMsg  string
	}{
		{
			name:     "upstream error message",
			status:   http.StatusInternalServerError,
			content:  `{"error":"out of memory"}`,
			sections: []types.SectionID{types.SectionSkills},
			wantKind: types.ErrUpstream,
			wantMsg:  "HTTP 500: out of memory",
		},
		{
			name:     "prose without json",
			status:   http.StatusOK,
			content:  "I could not tailor this CV, sorry.",
			sections: []types.SectionID{types.SectionSkills},
			wantKind: types.ErrParse,
		},
		{
			name:     "empty object",
			status:   http.StatusOK,
			content:  "{}",
			sections: []types.SectionID{types.SectionSkills},
			wantKind: types.ErrParse,
		},
		{
			name:     "schema violation",
			status:   http.StatusOK,
			content:  `{"skills":"Go, Rust"}`,
			sections: []types.SectionID{types.SectionSkills},
			wantKind: types.ErrValidation,
		},
		{
			name:     "only untargeted sections",
			status:   http.StatusOK,
			content:  `{"interests":[{"entityId":"in1","description":"Competitive"}]}`,
			sections: []types.SectionID{types.SectionSkills},
			wantKind: types.ErrValidation,
			wantMsg:  "none of the requested sections",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := openAIServer(t, tt.status, tt.content)
			store := newMemStore(sampleDoc())
			c := newTestController(store, &fakeResolver{cfg: openAIConfig(server.URL)}, server)

			result, err := c.Generate(context.Background(), "user-1", request(tt.sections...))
			require.NoError(t, err)

			assert.Equal(t, types.StatusFailed, result.Status)
			assert.Equal(t, tt.wantKind, result.ErrorKind)
			if tt.wantMsg != "" {
				assert.Contains(t, result.ErrorMessage, tt.wantMsg)
			}
			assert.Nil(t, result.Document)
			assert.Equal(t, 0, store.saves)
		})
	}
}

func TestGenerate_ParseFailureCarriesExcerpt(t *testing.T) {
	store := newMemStore(sampleDoc())
	c := NewController(store, &fakeResolver{})

	req := request(types.SectionSkills)
	req.ExecutionResultText = "no json here"
	result, err := c.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)

	assert.Equal(t, types.ErrParse, result.ErrorKind)
	assert.Equal(t, "no json here", result.RawText)
}

func TestGenerate_MergeNoOpDoesNotSave(t *testing.T) {
	server, _ := openAIServer(t, http.StatusOK, `{"skills":[{"entityId":"missing","sourceEntityId":"gone"}]}`)
	store := newMemStore(sampleDoc())
	c := newTestController(store, &fakeResolver{cfg: openAIConfig(server.URL)}, server)

	result, err := c.Generate(context.Background(), "user-1", request(types.SectionSkills))
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, types.OutcomeMergeNoOp, result.Outcome)
	assert.Equal(t, 0, store.saves)
	require.Len(t, result.Merge.Discarded, 1)
	if diff := cmp.Diff(sampleDoc(), result.Document); diff != "" {
		t.Errorf("document changed on no-op (-want +got):\n%s", diff)
	}
}

func TestGenerate_ConfigurationError(t *testing.T) {
	store := newMemStore(sampleDoc())
	resolver := &fakeResolver{err: &tenancy.ConfigurationError{Message: "provider openai requires an API key but none is configured"}}
	c := NewController(store, resolver)

	result, err := c.Generate(context.Background(), "user-1", request(types.SectionSkills))
	require.NoError(t, err)
	assert.Equal(t, types.ErrConfiguration, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "requires an API key")
	assert.Equal(t, 0, store.loads)
}

func TestGenerate_ResolverStoreFailureIsError(t *testing.T) {
	boom := errors.New("settings table unavailable")
	c := NewController(newMemStore(sampleDoc()), &fakeResolver{err: boom})

	_, err := c.Generate(context.Background(), "user-1", request(types.SectionSkills))
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	c := NewController(newMemStore(sampleDoc()), &fakeResolver{})

	_, err := c.Generate(context.Background(), "user-1", types.GenerationRequest{DocumentRef: "doc-1"})
	var reqErr *RequestError
	assert.True(t, errors.As(err, &reqErr))
}

func TestGenerate_MissingDocument(t *testing.T) {
	server, hits := openAIServer(t, http.StatusOK, "{}")
	c := newTestController(newMemStore(), &fakeResolver{cfg: openAIConfig(server.URL)}, server)

	_, err := c.Generate(context.Background(), "user-1", request(types.SectionSkills))
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestGenerate_SaveFailureIsError(t *testing.T) {
	server, _ := openAIServer(t, http.StatusOK, `{"skills":[{"entityId":"s1","level":"expert"}]}`)
	store := newMemStore(sampleDoc())
	store.saveErr = errors.New("disk full")
	c := newTestController(store, &fakeResolver{cfg: openAIConfig(server.URL)}, server)

	_, err := c.Generate(context.Background(), "user-1", request(types.SectionSkills))
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "save", storeErr.Op)
}

func TestGenerate_ContextRef(t *testing.T) {
	t.Run("fetched text reaches the prompt", func(t *testing.T) {
		store := newMemStore(sampleDoc())
		resolver := &fakeResolver{cfg: llm.ProviderConfig{Provider: llm.ProviderLocalDevice}}
		c := NewController(store, resolver, WithFetcher(fakeFetcher{text: "Payments platform team"}))

		req := request(types.SectionSkills)
		req.ContextText = ""
		req.ContextRef = "https://jobs.example.com/42"
		result, err := c.Generate(context.Background(), "user-1", req)
		require.NoError(t, err)
		require.Equal(t, types.StatusDeferred, result.Status)
		assert.Contains(t, result.Deferred.Prompt, "Payments platform team")
	})

	t.Run("fetch failure is a connection error", func(t *testing.T) {
		c := NewController(newMemStore(sampleDoc()), &fakeResolver{cfg: llm.ProviderConfig{Provider: llm.ProviderLocalDevice}},
			WithFetcher(fakeFetcher{err: errors.New("status 404")}))

		req := request(types.SectionSkills)
		req.ContextRef = "https://jobs.example.com/404"
		result, err := c.Generate(context.Background(), "user-1", req)
		require.NoError(t, err)
		assert.Equal(t, types.ErrConnection, result.ErrorKind)
		assert.Contains(t, result.ErrorMessage, "status 404")
	})
}

func TestGenerate_ContextRefToPrivateAddressIsRefused(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("INTERNAL-ADMIN-SECRET token=abc123"))
	}))
	t.Cleanup(internal.Close)

	store := newMemStore(sampleDoc())
	resolver := &fakeResolver{cfg: llm.ProviderConfig{Provider: llm.ProviderLocalDevice}}
	c := NewController(store, resolver, WithFetcher(fetch.NewFetcher(fetch.DefaultOptions(), nil)))

	req := request(types.SectionSkills)
	req.ContextRef = internal.URL + "/admin"
	result, err := c.Generate(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.Nil(t, result)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.ErrorIs(t, err, fetch.ErrBlockedAddress)
	assert.NotContains(t, err.Error(), "INTERNAL-ADMIN-SECRET")
}

func TestGenerate_UntargetedSectionsUntouched(t *testing.T) {
	server, _ := openAIServer(t, http.StatusOK,
		`{"skills":[{"entityId":"s1","level":"expert"}],"interests":[{"entityId":"in1","name":"Go"}],"profile":{"headline":"CTO"}}`)
	store := newMemStore(sampleDoc())
	c := newTestController(store, &fakeResolver{cfg: openAIConfig(server.URL)}, server)

	result, err := c.Generate(context.Background(), "user-1", request(types.SectionSkills))
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, result.Status)

	before := sampleDoc()
	assert.Equal(t, before.Interests, result.Document.Interests)
	assert.Equal(t, before.Profile, result.Document.Profile)
	assert.Equal(t, before.WorkExperience, result.Document.WorkExperience)
	assert.ElementsMatch(t, []types.SectionID{types.SectionProfile, types.SectionInterests}, result.Merge.Ignored)
}
