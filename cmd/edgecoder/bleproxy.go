package main

import (
	"context"
	"errors"

	"github.com/google/uuid"

	blecommon "github.com/edgecoder/mesh/internal/ble/common"
	blemanager "github.com/edgecoder/mesh/internal/ble/manager"
	"github.com/edgecoder/mesh/internal/routing"
)

// errNoBLEPeers signals the waterfall should fall through to the next
// step: every BLE candidate failed or none were reachable.
var errNoBLEPeers = errors.New("ble proxy: no peer completed the task")

// bleRouteProxy adapts the BLE mesh manager (C7) to routing.BLEProxy (C9
// step 1), translating between the waterfall's Request/Result shapes and
// the manager's common.TaskRequest/RouteResult shapes.
type bleRouteProxy struct {
	mgr         *blemanager.Manager
	requesterID string
}

func (p *bleRouteProxy) Status(ctx context.Context) (routing.BLEProxyStatus, error) {
	n := p.mgr.PeerCount()
	return routing.BLEProxyStatus{Connected: n > 0, CentralCount: n}, nil
}

func (p *bleRouteProxy) Forward(ctx context.Context, req routing.Request) (routing.Result, error) {
	result, err := p.mgr.RouteTask(ctx, p.requesterID, blecommon.TaskRequest{
		TaskID:   uuid.NewString(),
		Kind:     "chat",
		Language: req.Language,
		Input:    req.Prompt,
	})
	if err != nil {
		return routing.Result{}, err
	}
	if result == nil {
		return routing.Result{}, errNoBLEPeers
	}
	credits := result.Credits
	return routing.Result{
		Output:       result.Response.Output,
		Model:        req.Model,
		CreditsSpent: &credits,
	}, nil
}
