package serializer

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// benchmarkMessages covers the requests and responses a server actually sees.
func benchmarkMessages(b *testing.B) map[string]common.Message {
	info, err := json.Marshal(common.ShardInfo{ShardID: 100})
	if err != nil {
		b.Fatal(err)
	}

	return map[string]common.Message{
		"Ack":          *common.NewSetDataResponse(nil),
		"GetRequest":   *common.NewGetDataRequest("rrkah-fqaaa-aaaaa-aaaaq-cai"),
		"GetResponse":  *common.NewGetDataResponse("some stored text", nil),
		"SmallSet":     *common.NewSetDataRequest("2vxsx-fae", "v"),
		"LargeSet":     *common.NewSetDataRequest("rrkah-fqaaa-aaaaa-aaaaq-cai", string(make([]byte, 16*1024))),
		"InfoResponse": *common.NewInfoResponse(info, nil),
		"ErrorMessage": *common.NewErrorResponse("shard 999 not found"),
	}
}

// BenchmarkRoundTrip measures serialize + deserialize and reports the payload size
func BenchmarkRoundTrip(b *testing.B) {
	messages := benchmarkMessages(b)

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"/"+msgName, func(b *testing.B) {
				serializer := factory()
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("serialize: %v", err)
				}
				b.ReportMetric(float64(len(data)), "bytes")
				b.ReportAllocs()
				b.ResetTimer()

				var out common.Message
				for i := 0; i < b.N; i++ {
					data, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("serialize: %v", err)
					}
					if err := serializer.Deserialize(data, &out); err != nil {
						b.Fatalf("deserialize: %v", err)
					}
				}
			})
		}
	}
}
