package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, shard IShard) *common.Message {
	if shard == nil {
		return common.NewErrorResponse("handler: shard is nil")
	}

	switch req.MsgType {
	case common.MsgTSetData:
		p, err := parsePrincipal(req.Key)
		if err != nil {
			return common.NewSetDataResponse(err)
		}
		err = shard.Update(ctx, func(s store.IStore) error {
			return s.SetDataForPrincipal(p, string(req.Value))
		})
		return common.NewSetDataResponse(err)

	case common.MsgTGetData:
		p, err := parsePrincipal(req.Key)
		if err != nil {
			return common.NewGetDataResponse("", err)
		}
		var data string
		err = shard.Query(ctx, func(r store.IReader) error {
			got, err := r.GetDataForPrincipal(p)
			data = got
			return err
		})
		return common.NewGetDataResponse(data, err)

	case common.MsgTInfo:
		info, err := shard.Info(ctx)
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

func parsePrincipal(text string) (principal.Principal, error) {
	p, err := principal.FromText(text)
	if err != nil {
		return p, store.NewError(store.RetCInvalidKey, err.Error())
	}
	return p, nil
}
