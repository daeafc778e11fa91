package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/configurator/internal/domain"
)

func sampleJob() domain.CropRenderJob {
	return domain.CropRenderJob{
		JobID:        "01JCROPJOB0000000000000000",
		DesignID:     "01JDESIGN00000000000000000",
		SourceObject: "sources/design/photo.jpg",
		TargetW:      900,
		TargetH:      1125,
		Crop:         domain.CropState{Scale: 1.25, X: 12, Y: -51},
		QueuedAt:     time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCropRenderPublisherPublishesJob(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "crop-render")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewCropRenderPublisher(topic)
	if err != nil {
		t.Fatalf("NewCropRenderPublisher: %v", err)
	}

	job := sampleJob()
	if _, err := publisher.PublishCropRender(ctx, job); err != nil {
		t.Fatalf("PublishCropRender: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var got domain.CropRenderJob
	if err := json.Unmarshal(messages[0].Data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if diff := cmp.Diff(job, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if attr := messages[0].Attributes["target"]; attr != "900x1125" {
		t.Errorf("unexpected target attribute %q", attr)
	}
}

func TestNewCropRenderPublisherRequiresTopic(t *testing.T) {
	if _, err := NewCropRenderPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}

func TestDecodeCropRenderPush(t *testing.T) {
	job := sampleJob()
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var env PushEnvelope
	env.Message.Data = base64.StdEncoding.EncodeToString(data)
	got, err := DecodeCropRenderPush(env)
	if err != nil {
		t.Fatalf("DecodeCropRenderPush: %v", err)
	}
	if diff := cmp.Diff(job, got); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}

	env.Message.Data = "!!!"
	if _, err := DecodeCropRenderPush(env); err == nil {
		t.Error("expected error for invalid base64")
	}
	env.Message.Data = ""
	if _, err := DecodeCropRenderPush(env); err == nil {
		t.Error("expected error for empty data")
	}
}
