package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/tadoEng/EtabExtension/internal/errs"
)

type handler func(ctx context.Context, payload []byte) (any, error)

// bind adapts a typed operation to a JSON payload.
func bind[Req, Resp any](op func(context.Context, Req) (*Resp, error)) handler {
	return func(ctx context.Context, payload []byte) (any, error) {
		var req Req
		if len(bytes.TrimSpace(payload)) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, errs.Wrap(errs.InvalidRequest, err, "malformed request")
			}
		}
		resp, err := op(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func (s *Service) commands() map[string]handler {
	return map[string]handler{
		"create_project":      bind(s.CreateProject),
		"open_project":        bind(s.OpenProject),
		"get_project_state":   bind(s.GetProjectState),
		"create_branch":       bind(s.CreateBranch),
		"switch_branch":       bind(s.SwitchBranch),
		"list_branches":       bind(s.ListBranches),
		"delete_branch":       bind(s.DeleteBranch),
		"save_version":        bind(s.SaveVersion),
		"list_versions":       bind(s.ListVersions),
		"checkout_version":    bind(s.CheckoutVersion),
		"compare_versions":    bind(s.CompareVersions),
		"open_in_etabs":       bind(s.OpenInEtabs),
		"close_etabs":         bind(s.CloseEtabs),
		"get_etabs_status":    bind(s.GetEtabsStatus),
		"generate_e2k":        bind(s.GenerateE2k),
		"validate_etabs_file": bind(s.ValidateEtabsFile),
		"check_cli_available": bind(s.CLIInfo),
		"get_cli_version":     bind(s.CLIInfo),
	}
}

// Commands lists the command names Invoke accepts.
func (s *Service) Commands() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a command by name with a JSON payload and returns the JSON
// encoded Result envelope. It never fails: every error, including an unknown
// command or a malformed payload, is reported inside the envelope.
func (s *Service) Invoke(ctx context.Context, command string, payload []byte) []byte {
	var res Result[any]
	h, ok := s.handlers[command]
	if !ok {
		res = NewResult[any](nil, errs.E(errs.InvalidRequest, "unknown command %q", command), s.opts.Now())
	} else if data, err := h(ctx, payload); err != nil {
		res = NewResult[any](nil, err, s.opts.Now())
	} else {
		res = NewResult(&data, nil, s.opts.Now())
	}

	if res.Success {
		s.log.Debug("command succeeded", "command", command)
	} else {
		s.log.Warn("command failed", "command", command, "kind", res.ErrorKind, "err", res.Error)
	}

	out, err := json.Marshal(res)
	if err != nil {
		out, _ = json.Marshal(NewResult[any](nil, errs.Wrap(errs.Internal, err, "failed to encode response"), s.opts.Now()))
	}
	return out
}
