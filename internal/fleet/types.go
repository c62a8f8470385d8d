package fleet

import (
	"errors"
	"fmt"

	"signage-fleet-backend/internal/model"
)

// Action selects the command block a background order resolves into.
type Action string

const (
	ActionCancel Action = "cancel"
	ActionUpdate Action = "update"
)

// ErrUnmappedCommandType means the category x action table has a hole.
// That is a configuration defect in this binary, not a user error, and
// callers treat it as fatal for the operation.
var ErrUnmappedCommandType = errors.New("no command type mapped")

var bgCancelTypes = map[model.ContentCategory]model.CommandType{
	model.CategoryMusic:  model.CmdCancelBgMusic,
	model.CategoryImage:  model.CmdCancelBgImage,
	model.CategoryVideo:  model.CmdCancelBgVideo,
	model.CategoryTicker: model.CmdCancelTicker,
}

var bgUpdateTypes = map[model.ContentCategory]model.CommandType{
	model.CategoryMusic:  model.CmdUpdateBgMusic,
	model.CategoryImage:  model.CmdUpdateBgImage,
	model.CategoryVideo:  model.CmdUpdateBgVideo,
	model.CategoryTicker: model.CmdUpdateTicker,
}

// BgCommandType resolves the command type for an action on a background
// order of the given content category. Ad order types are fixed and do not
// go through this table.
func BgCommandType(category model.ContentCategory, action Action) (model.CommandType, error) {
	var table map[model.ContentCategory]model.CommandType
	switch action {
	case ActionCancel:
		table = bgCancelTypes
	case ActionUpdate:
		table = bgUpdateTypes
	default:
		return 0, fmt.Errorf("%w for action %q", ErrUnmappedCommandType, action)
	}

	t, ok := table[category]
	if !ok {
		return 0, fmt.Errorf("%w for category %s action %q", ErrUnmappedCommandType, category, action)
	}
	return t, nil
}

// BgCreateType resolves the create command type for a background order.
// Create types equal the category values by wire convention; the table
// exists so an out-of-range category fails loudly instead of emitting a
// nonsense type.
func BgCreateType(category model.ContentCategory) (model.CommandType, error) {
	switch category {
	case model.CategoryMusic:
		return model.CmdBgMusic, nil
	case model.CategoryImage:
		return model.CmdBgImage, nil
	case model.CategoryVideo:
		return model.CmdBgVideo, nil
	case model.CategoryTicker:
		return model.CmdTicker, nil
	}
	return 0, fmt.Errorf("%w for category %s action create", ErrUnmappedCommandType, category)
}
