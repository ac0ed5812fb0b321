package grpc

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"downloads-bridge/internal/models"
)

// saved-file events travel as a Struct with the JSON field names of models.SavedFile

func savedFileToStruct(saved models.SavedFile) (*structpb.Struct, error) {
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event")
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrap(err, "failed to convert event")
	}
	return msg, nil
}

func structToSavedFile(msg *structpb.Struct) (models.SavedFile, error) {
	var saved models.SavedFile
	data, err := protojson.Marshal(msg)
	if err != nil {
		return saved, errors.Wrap(err, "failed to convert event")
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		return saved, errors.Wrap(err, "failed to unmarshal event")
	}
	return saved, nil
}
