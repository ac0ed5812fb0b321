package downloads

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downloads-bridge/internal/channel"
	"downloads-bridge/internal/models"
	"downloads-bridge/internal/saver"
	"downloads-bridge/internal/storage"
)

const testChannel = "bridge/download"

type stubSaver struct {
	calls    int
	location string
	err      error
}

func (s *stubSaver) Save(ctx context.Context, data []byte, fileName string) (string, error) {
	s.calls++
	return s.location, s.err
}

type recordingNotifier struct {
	saved []models.SavedFile
}

func (n *recordingNotifier) Notify(saved models.SavedFile) {
	n.saved = append(n.saved, saved)
}

func invoke(t *testing.T, h channel.MethodCallHandler, payload string) *channel.Envelope {
	t.Helper()
	m := channel.NewMessenger(nil)
	m.SetMethodCallHandler(testChannel, h)

	out, err := m.Invoke(context.Background(), testChannel, []byte(payload))
	require.NoError(t, err)
	env, err := channel.DecodeEnvelope(out)
	require.NoError(t, err)
	return env
}

func saveFilePayload(name string, data []byte) string {
	return `{"method":"saveFile","args":{"fileName":"` + name + `","bytes":"` + base64.StdEncoding.EncodeToString(data) + `"}}`
}

func TestChannel_SaveFile_Legacy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Download")
	legacy, err := storage.NewLegacyBackend(dir)
	require.NoError(t, err)
	fs := saver.New(storage.StaticCapability(false), nil, legacy, nil)

	notifier := &recordingNotifier{}
	ch := NewChannel(fs, notifier, nil)

	env := invoke(t, ch, saveFilePayload("doc.pdf", []byte("pdf")))
	require.Equal(t, channel.KindSuccess, env.Kind)

	var location string
	require.NoError(t, json.Unmarshal(env.Result, &location))
	assert.Equal(t, filepath.Join(dir, "doc.pdf"), location)

	got, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(got))

	require.Len(t, notifier.saved, 1)
	assert.Equal(t, location, notifier.saved[0].Location)
	assert.Equal(t, "doc.pdf", notifier.saved[0].FileName)
	assert.Equal(t, "legacy", notifier.saved[0].Backend)
	assert.Equal(t, int64(3), notifier.saved[0].Size)

	snapshot := ch.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot["saves_ok"])
	assert.Equal(t, int64(3), snapshot["bytes_written"])
}

func TestChannel_SaveFile_MissingArguments(t *testing.T) {
	payloads := map[string]string{
		"no args":       `{"method":"saveFile"}`,
		"no bytes":      `{"method":"saveFile","args":{"fileName":"a.pdf"}}`,
		"no file name":  `{"method":"saveFile","args":{"bytes":"aGk="}}`,
		"null bytes":    `{"method":"saveFile","args":{"fileName":"a.pdf","bytes":null}}`,
		"wrong type":    `{"method":"saveFile","args":{"fileName":42,"bytes":"aGk="}}`,
		"args not dict": `{"method":"saveFile","args":["a.pdf","aGk="]}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			s := &stubSaver{location: "/never"}
			ch := NewChannel(s, nil, nil)

			env := invoke(t, ch, payload)
			assert.Equal(t, channel.KindError, env.Kind)
			assert.Equal(t, CodeInvalid, env.Code)
			assert.Equal(t, "Missing arguments", env.Message)
			assert.Zero(t, s.calls, "no save may be attempted")
			assert.Equal(t, int64(1), ch.Metrics().InvalidCalls.Load())
		})
	}
}

func TestChannel_SaveFile_Failure(t *testing.T) {
	cases := map[string]*stubSaver{
		"save error":  {err: errors.Wrap(saver.ErrSaveFailed, "disk")},
		"no location": {},
	}

	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			ch := NewChannel(s, notifier, nil)

			env := invoke(t, ch, saveFilePayload("a.pdf", []byte("x")))
			assert.Equal(t, channel.KindError, env.Kind)
			assert.Equal(t, CodeUnavailable, env.Code)
			assert.Equal(t, "Failed to save file", env.Message)
			assert.Equal(t, "null", string(env.Details))
			assert.Empty(t, notifier.saved)
			assert.Equal(t, int64(1), ch.Metrics().SavesFailed.Load())
		})
	}
}

func TestChannel_SaveFile_EmptyBytes(t *testing.T) {
	s := &stubSaver{location: "/downloads/empty"}
	ch := NewChannel(s, nil, nil)

	env := invoke(t, ch, saveFilePayload("empty", nil))
	assert.Equal(t, channel.KindSuccess, env.Kind)
	assert.Equal(t, 1, s.calls)
}

func TestChannel_UnknownMethod(t *testing.T) {
	s := &stubSaver{}
	ch := NewChannel(s, nil, nil)

	env := invoke(t, ch, `{"method":"deleteFile","args":{"fileName":"a.pdf"}}`)
	assert.Equal(t, channel.KindNotImplemented, env.Kind)
	assert.Zero(t, s.calls)
	assert.Equal(t, int64(1), ch.Metrics().NotImplemented.Load())
}
