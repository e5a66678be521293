package conversion

// Intermediate PCM parameters for stage 1
const (
	IntermediateCodec      = "pcm_s16le"
	IntermediateSampleRate = "44100"
	IntermediateChannels   = "2"
)

// OutputCodec is the stage 2 encoder
const OutputCodec = "libmp3lame"

// DemuxArgs builds the stage 1 command: drop video, decode audio to 16-bit stereo WAV
func DemuxArgs(opts Options) []string {
	args := []string{"-i", InputFile}
	if opts.Range != nil {
		args = append(args, opts.Range.Args()...)
	}
	return append(args,
		"-vn",
		"-acodec", IntermediateCodec,
		"-ar", IntermediateSampleRate,
		"-ac", IntermediateChannels,
		IntermediateFile,
	)
}

// EncodeArgs builds the stage 2 command: WAV to MP3 at the requested quality
func EncodeArgs(opts Options) []string {
	args := []string{"-i", IntermediateFile, "-codec:a", OutputCodec}
	args = append(args, opts.quality().EncoderArgs()...)
	return append(args, OutputFile)
}
