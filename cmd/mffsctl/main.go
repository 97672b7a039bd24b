package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jcoverton/mffs"
	"github.com/jcoverton/mffs/sectiontable"
)

var layoutFlag = &cli.StringFlag{
	Name:     "layout",
	Usage:    "CSV section-table layout file",
	Required: true,
}

func main() {
	app := cli.App{
		Usage: "Inspect and manipulate mffs flash file system images",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List files in the image",
				Flags:     []cli.Flag{layoutFlag},
				Action:    listFiles,
			},
			{
				Name:      "cat",
				Usage:     "Print a file's contents to stdout",
				Flags:     []cli.Flag{layoutFlag},
				ArgsUsage: "NAME",
				Action:    catFile,
			},
			{
				Name:      "put",
				Usage:     "Copy a local file into the image",
				Flags:     []cli.Flag{layoutFlag},
				ArgsUsage: "LOCAL_PATH NAME",
				Action:    putFile,
			},
			{
				Name:      "rm",
				Usage:     "Erase a file",
				Flags:     []cli.Flag{layoutFlag},
				ArgsUsage: "NAME",
				Action:    removeFile,
			},
			{
				Name:   "check",
				Usage:  "Run the consistency checker",
				Flags:  []cli.Flag{layoutFlag},
				Action: runCheck,
			},
			{
				Name:   "space",
				Usage:  "Report space usage",
				Flags:  []cli.Flag{layoutFlag},
				Action: runSpace,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openEngine(context *cli.Context) (*mffs.Engine, []*os.File, error) {
	f, err := os.Open(context.String("layout"))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := sectiontable.Load(f)
	if err != nil {
		return nil, nil, err
	}

	entries, files, err := sectiontable.Open(rows)
	if err != nil {
		return nil, nil, err
	}

	return mffs.Initialize(entries, 0), files, nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func listFiles(context *cli.Context) error {
	engine, files, err := openEngine(context)
	if err != nil {
		return err
	}
	defer closeFiles(files)
	defer engine.Terminate()

	handle := mffs.GlobalSector(0)
	for {
		info, found, derr := engine.NextDirectory(&handle)
		if derr != nil {
			return derr
		}
		if !found {
			break
		}
		fmt.Printf("%-40s %10d bytes  count=%d\n", info.Name, info.Size, info.Count)
	}
	return nil
}

func catFile(context *cli.Context) error {
	engine, files, err := openEngine(context)
	if err != nil {
		return err
	}
	defer closeFiles(files)
	defer engine.Terminate()

	name := context.Args().First()
	fd, derr := engine.Open(name, mffs.RDONLY, 0)
	if derr != nil {
		return derr
	}
	defer engine.Close(fd)

	buf := make([]byte, 4096)
	for {
		n, derr := engine.Read(fd, buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if derr != nil || n == 0 {
			break
		}
	}
	return nil
}

func putFile(context *cli.Context) error {
	engine, files, err := openEngine(context)
	if err != nil {
		return err
	}
	defer closeFiles(files)
	defer engine.Terminate()

	localPath := context.Args().Get(0)
	name := context.Args().Get(1)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	fd, derr := engine.Open(name, mffs.WRONLY|mffs.CREATE, 0o64)
	if derr != nil {
		return derr
	}
	defer engine.Close(fd)

	_, derr = engine.Write(fd, data)
	return derr
}

func removeFile(context *cli.Context) error {
	engine, files, err := openEngine(context)
	if err != nil {
		return err
	}
	defer closeFiles(files)
	defer engine.Terminate()

	return engine.Erase(context.Args().First())
}

func runCheck(context *cli.Context) error {
	engine, files, err := openEngine(context)
	if err != nil {
		return err
	}
	defer closeFiles(files)
	defer engine.Terminate()

	fixed, cerr := engine.Check()
	fmt.Printf("fixed %d sectors, cross-chain=%d bad-high-water=%d\n",
		fixed, engine.CrossChainCount(), engine.BadSectorHighWater())
	return cerr
}

func runSpace(context *cli.Context) error {
	engine, files, err := openEngine(context)
	if err != nil {
		return err
	}
	defer closeFiles(files)
	defer engine.Terminate()

	free, derr := engine.Space(mffs.SpaceFreeBytes)
	if derr != nil {
		return derr
	}
	total, derr := engine.Space(mffs.SpaceTotalBytes)
	if derr != nil {
		return derr
	}
	fmt.Printf("%d / %d bytes free\n", free, total)
	return nil
}
