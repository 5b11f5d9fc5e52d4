package disk

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/proto"
)

// Codec converts typed values to and from the bytes stored in cache files
type Codec interface {
	Marshal(value interface{}) ([]byte, error)
	Unmarshal(data []byte, value interface{}) error
}

// JSONCodec stores values as JSON text
type JSONCodec struct{}

func (codec JSONCodec) Marshal(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (codec JSONCodec) Unmarshal(data []byte, value interface{}) error {
	return json.Unmarshal(data, value)
}

// GobCodec stores arbitrary Go values with encoding/gob
type GobCodec struct{}

func (codec GobCodec) Marshal(value interface{}) ([]byte, error) {
	buffer := bytes.Buffer{}
	err := gob.NewEncoder(&buffer).Encode(value)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (codec GobCodec) Unmarshal(data []byte, value interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(value)
}

// ProtoCodec stores protobuf messages in wire format
type ProtoCodec struct{}

func (codec ProtoCodec) Marshal(value interface{}) ([]byte, error) {
	message, ok := value.(proto.Message)
	if !ok || message == nil {
		return nil, xerrors.Errorf("value %T is not a proto message", value)
	}
	return proto.Marshal(message)
}

func (codec ProtoCodec) Unmarshal(data []byte, value interface{}) error {
	message, ok := value.(proto.Message)
	if !ok || message == nil {
		return xerrors.Errorf("value %T is not a proto message", value)
	}
	return proto.Unmarshal(data, message)
}

// ImageFormat is an image file format
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"

	jpegQualityDefault int = 100
)

// ImageCodec stores image.Image values, Unmarshal expects *image.Image
type ImageCodec struct {
	Format  ImageFormat
	Quality int // jpeg only
}

func (codec ImageCodec) Marshal(value interface{}) ([]byte, error) {
	img, ok := value.(image.Image)
	if !ok || img == nil {
		return nil, xerrors.Errorf("value %T is not an image", value)
	}

	buffer := bytes.Buffer{}
	switch codec.Format {
	case ImageFormatJPEG:
		quality := codec.Quality
		if quality <= 0 || quality > 100 {
			quality = jpegQualityDefault
		}

		err := jpeg.Encode(&buffer, img, &jpeg.Options{Quality: quality})
		if err != nil {
			return nil, err
		}
	case ImageFormatPNG, "":
		err := png.Encode(&buffer, img)
		if err != nil {
			return nil, err
		}
	default:
		return nil, xerrors.Errorf("unknown image format %q", codec.Format)
	}

	return buffer.Bytes(), nil
}

func (codec ImageCodec) Unmarshal(data []byte, value interface{}) error {
	target, ok := value.(*image.Image)
	if !ok || target == nil {
		return xerrors.Errorf("value %T is not an image pointer", value)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	*target = img
	return nil
}

// ZstdCodec compresses the output of another codec
type ZstdCodec struct {
	inner   Codec
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCodec creates a new ZstdCodec at the given zstd compression level
func NewZstdCodec(inner Codec, level int) (*ZstdCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, xerrors.Errorf("failed to create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create zstd decoder: %w", err)
	}

	return &ZstdCodec{
		inner:   inner,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (codec *ZstdCodec) Marshal(value interface{}) ([]byte, error) {
	data, err := codec.inner.Marshal(value)
	if err != nil {
		return nil, err
	}
	return codec.encoder.EncodeAll(data, nil), nil
}

func (codec *ZstdCodec) Unmarshal(data []byte, value interface{}) error {
	decompressed, err := codec.decoder.DecodeAll(data, nil)
	if err != nil {
		return xerrors.Errorf("failed to decompress: %w", err)
	}
	return codec.inner.Unmarshal(decompressed, value)
}
