package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

// Write handlers append events directly to the event store. They skip
// permission checks, schema validation and workflow triggering, so a task
// created here never fires "Created" workflows of its own.

// DefaultTaskType is the content type CreateTask uses when none is given.
const DefaultTaskType = "Task"

// CreateTaskHandler creates a new content item linked to the triggering one.
type CreateTaskHandler struct {
	Store content.EventStore
	IDs   content.IDGenerator
	Now   func() time.Time
}

func (h *CreateTaskHandler) Metadata() Metadata {
	return Metadata{
		Type:               "CreateTask",
		Description:        "Creates a content item. Every parameter except ContentType becomes a data field; SourceContentId and SourceContentType are added.",
		RequiredParameters: []string{"Title"},
		OptionalParameters: []string{"ContentType", "Description", "AssignedTo", "DueDate"},
		Example: map[string]string{
			"ContentType": "Task",
			"Title":       "Review {{contentType}} {{id}}",
			"AssignedTo":  "editor@example.com",
		},
		Effect: EffectWrite,
	}
}

func (h *CreateTaskHandler) Execute(ctx context.Context, inv *Invocation) error {
	contentType := inv.Param("ContentType")
	if contentType == "" {
		contentType = DefaultTaskType
	}

	data := content.Data{}
	for k, v := range inv.Parameters {
		if strings.EqualFold(k, "ContentType") {
			continue
		}
		data[k] = v
	}
	if inv.Content != nil {
		data["SourceContentId"] = inv.Content.ID
		data["SourceContentType"] = inv.Content.ContentType
	}

	id := h.IDs.Generate()
	env := content.Envelope{
		ContentID:  id,
		Version:    1,
		OccurredAt: now(h.Now),
		Event: content.Created{
			ID:          id,
			ContentType: contentType,
			Data:        data,
			Status:      content.StatusDraft,
			Sensitivity: content.SensitivityPublic,
			CreatedBy:   SystemActor,
		},
	}
	if _, err := content.Commit(ctx, h.Store, nil, []content.Envelope{env}); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	inv.SetMessage(fmt.Sprintf("created %s %s", contentType, id))
	return nil
}

// StatusField is the UpdateField target that changes status instead of data.
const StatusField = "Status"

// UpdateFieldHandler sets one field on the triggering content or on another
// item named by ContentId.
type UpdateFieldHandler struct {
	Store content.EventStore
	Now   func() time.Time
}

func (h *UpdateFieldHandler) Metadata() Metadata {
	return Metadata{
		Type:               "UpdateField",
		Description:        "Sets a data field (data.Path) or Status on the triggering content, or on ContentId when given. ValueType is string, number, boolean or json.",
		RequiredParameters: []string{"Field", "Value"},
		OptionalParameters: []string{"ContentId", "ValueType"},
		Example: map[string]string{
			"Field": "data.ReviewState",
			"Value": "Pending",
		},
		Effect: EffectWrite,
	}
}

func (h *UpdateFieldHandler) Execute(ctx context.Context, inv *Invocation) error {
	field := strings.TrimSpace(inv.Param("Field"))
	if field == "" {
		return errors.New("update field: no field")
	}

	targetID := inv.Param("ContentId")
	triggering := inv.Content != nil && (targetID == "" || targetID == inv.Content.ID)
	if targetID == "" {
		if inv.Content == nil {
			return errors.New("update field: no target content")
		}
		targetID = inv.Content.ID
	}

	current, _, err := content.Load(ctx, h.Store, targetID)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}

	env := content.Envelope{
		ContentID:  targetID,
		Version:    current.Version + 1,
		OccurredAt: now(h.Now),
	}

	if strings.EqualFold(field, StatusField) {
		status, err := content.ParseStatus(inv.Param("Value"))
		if err != nil {
			return fmt.Errorf("update field: %w", err)
		}
		if status == current.Status {
			inv.SetMessage("status already " + string(status))
			return nil
		}
		env.Event = content.StatusChanged{ID: targetID, NewStatus: status, UpdatedBy: SystemActor}
	} else {
		value, err := convertValue(inv.Param("Value"), inv.Param("ValueType"))
		if err != nil {
			return fmt.Errorf("update field %s: %w", field, err)
		}
		path := strings.TrimPrefix(field, "data.")
		data := current.Data.Clone()
		if err := setPath(data, path, value); err != nil {
			return fmt.Errorf("update field %s: %w", field, err)
		}
		env.Event = content.Updated{ID: targetID, Data: data, UpdatedBy: SystemActor}
	}

	next, err := content.Commit(ctx, h.Store, current, []content.Envelope{env})
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	if triggering {
		*inv.Content = *next.Clone()
	}
	inv.SetMessage(fmt.Sprintf("set %s on %s (version %d)", field, targetID, next.Version))
	return nil
}

func convertValue(raw, valueType string) (any, error) {
	switch strings.ToLower(valueType) {
	case "", "string":
		return raw, nil
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", raw)
		}
		return f, nil
	case "boolean", "bool":
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("value %q is not a boolean", raw)
		}
		return b, nil
	case "json":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("value is not JSON: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown value type %q", valueType)
}

// setPath assigns value at a dotted path, creating intermediate maps.
func setPath(data content.Data, path string, value any) error {
	if path == "" {
		return errors.New("empty field path")
	}
	parts := strings.Split(path, ".")
	m := map[string]any(data)
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok || next == nil {
			child := map[string]any{}
			m[p] = child
			m = child
			continue
		}
		switch child := next.(type) {
		case map[string]any:
			m = child
		case content.Data:
			m = child
		default:
			return fmt.Errorf("%s is not an object", p)
		}
	}
	m[parts[len(parts)-1]] = value
	return nil
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn()
}
