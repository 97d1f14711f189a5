package zabota

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Houeta/callrelay-bot/internal/models"
)

const (
	// pageLimit bounds one fetch. Only the first page is requested; a backlog
	// larger than one page is picked up by the following cycles as the
	// window advances.
	pageLimit = 50
	pageFirst = 1

	// timeLayout matches the zoneless ISO-8601 timestamps the platform filters on.
	timeLayout = "2006-01-02T15:04:05"

	audioLinkFormat = "https://client.za-bota.com/calls/storage/%s/%s/%s"
	// linkUnavailable is substituted when the record lacks any of the three
	// fields the recording URL is synthesized from.
	linkUnavailable = "link unavailable"
)

// Client fetches call records from the za-bota platform REST API.
type Client struct {
	log        *slog.Logger
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a platform client. baseURL points at the calls listing
// endpoint; timeout caps one fetch, the platform can be slow on wide windows.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		log:        log,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// apiResponse is the platform envelope: {status, data: {data: [...]}}.
type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		Data []rawCall `json:"data"`
	} `json:"data"`
}

type rawCall struct {
	ID        int64           `json:"id"`
	CreatedAt string          `json:"created_at"`
	Storage   string          `json:"storage"`
	UUID      string          `json:"uuid"`
	Variables json.RawMessage `json:"variables"`
}

// callVariables is the per-call blob. Depending on the platform version it
// arrives either as a nested object or as a JSON-encoded string.
type callVariables struct {
	AllAudioRecord string          `json:"all_audio_record"`
	Summarizing    json.RawMessage `json:"summarizing"`
	Dialog         []dialogTurn    `json:"dialog"`
}

type dialogTurn struct {
	User      *string           `json:"user"`
	Assistant *assistantMessage `json:"assistant"`
}

type assistantMessage struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// FetchNewCalls requests the calls of one bot updated within [since, until)
// and normalizes them into CallRecords. Records without a variables blob are
// skipped. Callers treat any returned error the same as an empty result.
func (c *Client) FetchNewCalls(
	ctx context.Context,
	apiKey, botID string,
	since, until time.Time,
) ([]models.CallRecord, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("page", strconv.Itoa(pageFirst))
	params.Set("sortBy", "updated_at")
	params.Set("filter_date", "updated_at")
	params.Set("date_time_start", since.Format(timeLayout))
	params.Set("date_time_end", until.Format(timeLayout))
	params.Set("filter", botID)
	params.Set("filterOn", `["bot_id"]`)
	params.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build platform request: %w", err)
	}
	// The platform rejects requests without browser-looking headers.
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform for bot %s: %w", botID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("platform returned HTTP %d for bot %s", resp.StatusCode, botID)
	}

	// Content-Type is ignored on purpose: the platform serves JSON under text/html.
	var envelope apiResponse
	if err = json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode platform response for bot %s: %w", botID, err)
	}

	if envelope.Status != "success" {
		c.log.WarnContext(ctx, "Platform request succeeded but carried no call data",
			"bot_id", botID, "status", envelope.Status)
		return nil, nil
	}

	c.log.InfoContext(ctx, "Fetched calls from platform", "bot_id", botID, "count", len(envelope.Data.Data))

	records := make([]models.CallRecord, 0, len(envelope.Data.Data))
	for _, call := range envelope.Data.Data {
		variables, errVars := decodeVariables(call.Variables)
		if errVars != nil {
			c.log.WarnContext(ctx, "Skipping call with malformed variables",
				"bot_id", botID, "call_id", call.ID, "error", errVars)
			continue
		}
		if variables == nil {
			continue
		}

		records = append(records, models.CallRecord{
			ID:                 call.ID,
			Time:               call.CreatedAt,
			AudioLink:          audioLink(call.Storage, call.UUID, variables.AllAudioRecord),
			Summary:            prettySummary(variables.Summarizing),
			Transcript:         buildTranscript(call.ID, call.CreatedAt, variables.Dialog),
			TranscriptFilename: fmt.Sprintf("transcription_%d.txt", call.ID),
		})
	}

	return records, nil
}

// decodeVariables unwraps the variables blob, which may be a nested object
// or a JSON-encoded string. A missing blob yields nil without error: such
// records are excluded, not failed.
func decodeVariables(raw json.RawMessage) (*callVariables, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return nil, nil
	}

	payload := []byte(raw)
	if payload[0] == '"' {
		var encoded string
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return nil, fmt.Errorf("failed to unquote variables: %w", err)
		}
		payload = []byte(encoded)
	}

	var variables callVariables
	if err := json.Unmarshal(payload, &variables); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %w", err)
	}

	return &variables, nil
}

// audioLink synthesizes the recording URL from the storage ID, call UUID and
// audio file name. All three are required; otherwise the sentinel is used.
func audioLink(storage, callUUID, audioFile string) string {
	if storage == "" || callUUID == "" || audioFile == "" {
		return linkUnavailable
	}
	return fmt.Sprintf(audioLinkFormat, storage, callUUID, audioFile)
}

// prettySummary renders the summarizing blob as indented JSON. A
// string-valued blob is decoded first; if it is not valid JSON itself it is
// wrapped as {"raw_text": ...} so the admins still see it.
func prettySummary(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return "{}"
	}

	var value any
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return "{}"
		}
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			value = map[string]string{"raw_text": encoded}
		}
	} else if err := json.Unmarshal(raw, &value); err != nil {
		return "{}"
	}

	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "{}"
	}

	return string(pretty)
}

// buildTranscript reconstructs the conversation text from the dialog turns.
// Client turns are always kept; assistant turns only in state "active" or
// "last", the platform repeats superseded drafts under other states.
func buildTranscript(callID int64, callTime string, dialog []dialogTurn) string {
	transcript := fmt.Sprintf("Call transcript ID: %d\nDate: %s\n\n", callID, callTime)

	for _, turn := range dialog {
		switch {
		case turn.User != nil:
			transcript += fmt.Sprintf("Client: %s\n\n", *turn.User)
		case turn.Assistant != nil && (turn.Assistant.State == "active" || turn.Assistant.State == "last"):
			transcript += fmt.Sprintf("Assistant: %s\n\n", turn.Assistant.Message)
		}
	}

	return transcript
}
